// Package sources reads rows from the systems forklift copies from: operational databases, HTTP APIs and
// files in object storage.
package sources

import (
	"context"
	"fmt"
	"regexp"

	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/rdbms"
	"github.com/relloyd/forklift/rdbms/shared"
	"github.com/relloyd/forklift/retry"
	"github.com/relloyd/forklift/stream"
)

var reTableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLSource runs read-only queries against a source database.
// Each query is bounded by the policy's call timeout and repeated on transient errors.
type SQLSource struct {
	Log   logger.Logger
	Conn  shared.Connector
	Retry *retry.Policy // optional
}

func NewSQLSource(log logger.Logger, conn shared.Connector, policy *retry.Policy) *SQLSource {
	return &SQLSource{Log: log, Conn: conn, Retry: policy}
}

// Query returns the full result of sql.
func (s *SQLSource) Query(ctx context.Context, sql string, args ...interface{}) (*stream.Rows, error) {
	rows, err := retry.DoValue(ctx, s.Retry, func(ctx context.Context) (*stream.Rows, error) {
		return rdbms.QueryRows(ctx, s.Log, s.Conn, sql, args...)
	})
	if err != nil {
		return nil, err
	}
	s.Log.Debug("source query returned ", rows.Len(), " rows")
	return rows, nil
}

// Table returns every row of the named table, optionally qualified by schema.
func (s *SQLSource) Table(ctx context.Context, name string) (*stream.Rows, error) {
	if !reTableName.MatchString(name) {
		return nil, errs.InvalidArgument("bad source table name %q", name)
	}
	return s.Query(ctx, fmt.Sprintf("select * from %v", name))
}

// Keys returns the first column of the result of sql, for batching.
func (s *SQLSource) Keys(ctx context.Context, sql string, args ...interface{}) ([]interface{}, error) {
	rows, err := s.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(rows.Columns) == 0 {
		return nil, fmt.Errorf("key query returned no columns")
	}
	return rows.Column(rows.Columns[0])
}

// Placeholder returns the bind variable for argument n (1-based) in the source's dialect.
func (s *SQLSource) Placeholder(n int) string {
	return s.Conn.GetDialect().Placeholder(n)
}
