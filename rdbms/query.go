package rdbms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/rdbms/shared"
	"github.com/relloyd/forklift/stream"
)

// Querier is satisfied by shared.Connector and shared.Transacter.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Execer is satisfied by shared.Connector and shared.Transacter.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SqlQuery runs sqltext with args and passes the header and every row to i.
func SqlQuery(ctx context.Context, log logger.Logger, db Querier, sqltext string, i shared.SqlResultHandler, args ...interface{}) error {
	rows, err := db.QueryContext(ctx, sqltext, args...)
	if err != nil {
		return fmt.Errorf("error during database query using SQL: '%v': %w", sqltext, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return fmt.Errorf("error fetching column types: %w", err)
	}
	// Scan the values dynamically.
	lenColTypes := len(colTypes)
	scanPtrs := make([]interface{}, lenColTypes)
	scanVals := make([]interface{}, lenColTypes)
	for idx := 0; idx < lenColTypes; idx++ { // for each column...
		scanPtrs[idx] = &scanVals[idx]
	}
	// Build and send the header.
	header := make([]interface{}, lenColTypes)
	for idx := range colTypes {
		header[idx] = colTypes[idx].Name()
	}
	if err = i.HandleHeader(header); err != nil {
		return err
	}
	// Send the rows via callback interface.
	numRows := 0
	for rows.Next() {
		if err := ctx.Err(); err != nil { // quit if asked to...
			return err
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		row := make([]interface{}, lenColTypes)
		copy(row, scanVals)
		if err = i.HandleRow(row); err != nil {
			return err
		}
		numRows++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error fetching rows: %w", err)
	}
	log.Debug("query fetched ", numRows, " rows")
	return nil
}

// rowsHandler collects a query result into stream.Rows.
type rowsHandler struct {
	rows *stream.Rows
}

func (h *rowsHandler) HandleHeader(i []interface{}) error {
	cols := make([]string, len(i))
	for idx, v := range i {
		cols[idx] = fmt.Sprintf("%v", v)
	}
	h.rows = stream.NewRows(cols...)
	return nil
}

func (h *rowsHandler) HandleRow(i []interface{}) error {
	for idx, v := range i {
		if b, ok := v.([]byte); ok { // drivers return text as bytes for some types
			i[idx] = string(b)
		}
	}
	return h.rows.Append(i...)
}

// QueryRows runs sqltext with args and returns the result set.
func QueryRows(ctx context.Context, log logger.Logger, db Querier, sqltext string, args ...interface{}) (*stream.Rows, error) {
	h := &rowsHandler{}
	if err := SqlQuery(ctx, log, db, sqltext, h, args...); err != nil {
		return nil, err
	}
	return h.rows, nil
}

// ExecScript executes each ';' terminated statement in script in order.
func ExecScript(ctx context.Context, log logger.Logger, db Execer, script string) error {
	for _, stmt := range SplitStatements(script) {
		log.Debug("executing: ", stmt)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error executing statement '%v': %w", stmt, err)
		}
	}
	return nil
}

// SplitStatements splits a script on ';' outside single quotes and drops blank statements and '--' comment lines.
func SplitStatements(script string) []string {
	var lines []string
	for _, l := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(l), "--") {
			continue
		}
		lines = append(lines, l)
	}
	script = strings.Join(lines, "\n")
	retval := make([]string, 0)
	var b strings.Builder
	inQuote := false
	for _, r := range script {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == ';' && !inQuote:
			if s := strings.TrimSpace(b.String()); s != "" {
				retval = append(retval, s)
			}
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		retval = append(retval, s)
	}
	return retval
}
