package rdbms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/IBM/nzgo/v12"
	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/relloyd/forklift/constants"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/rdbms/shared"
	"github.com/xo/dburl"
	_ "modernc.org/sqlite"
)

// driverOverrides maps the driver names chosen by dburl to the drivers linked into this binary.
var driverOverrides = map[string]string{
	"postgres": "pgx",    // jackc/pgx stdlib
	"sqlite3":  "sqlite", // modernc.org/sqlite
}

// supportedDsnConnectionTypes is a map where keys are the connections opened generically via dburl.
// Snowflake, Netezza and SQLite connections are handled explicitly so do not need to be here.
var supportedDsnConnectionTypes = map[string]struct{}{
	constants.ConnectionTypeSqlServer: {},
	constants.ConnectionTypePostgres:  {},
}

func isSupportedConnection(connectionType string) bool {
	_, ok := supportedDsnConnectionTypes[connectionType]
	return ok
}

// OpenDbConnection opens a database connection using the supplied ConnectionDetails struct in c.
func OpenDbConnection(ctx context.Context, log logger.Logger, c shared.ConnectionDetails) (db shared.Connector, err error) {
	log.Debug("opening connection type ", c.Type, " with logicalName ", c.LogicalName) // don't log password details in c.Data!
	switch c.Type {
	case constants.ConnectionTypeSnowflake:
		db, err = newSnowflakeConnection(ctx, log, c.Dsn())
	case constants.ConnectionTypeNetezza:
		db, err = newNetezzaConnection(ctx, log, c.Dsn())
	case constants.ConnectionTypeSqlite:
		path := c.Data[shared.DefaultConnectionKeyNames.Path]
		if path == "" { // if there is no explicit path try the DSN...
			path, err = sqlitePathFromDsn(c.Dsn())
			if err != nil {
				return nil, err
			}
		}
		db, err = OpenSqlite(ctx, log, path)
	default:
		if isSupportedConnection(c.Type) { // if the connection type is supported...
			db, err = newConnectionWithDsn(ctx, log, c.Type, c.Dsn())
		} else { // else we have an unsupported database...
			err = fmt.Errorf("unsupported database type, %q", c.Type)
		}
	}
	return
}

func newConnectionWithDsn(ctx context.Context, log logger.Logger, connectionType string, dsn string) (shared.Connector, error) {
	redacted := shared.RedactDsn(connectionType, dsn)
	log.Info("Opening database connection: ", redacted)
	u, err := dburl.Parse(dsn)
	if err != nil { // if the DSN could not be parsed...
		return nil, errors.Wrapf(err, "error parsing DSN %q", redacted)
	}
	driver := u.Driver
	if d, ok := driverOverrides[driver]; ok {
		driver = d
	}
	return openAndPing(ctx, log, connectionType, driver, u.DSN, redacted)
}

func newNetezzaConnection(ctx context.Context, log logger.Logger, dsn string) (shared.Connector, error) {
	n := shared.NetezzaConnectionDetails{Dsn: dsn}
	connStr, err := n.GetNzgoConnectionString()
	if err != nil {
		return nil, err
	}
	return openAndPing(ctx, log, constants.ConnectionTypeNetezza, "nzgo", connStr, n.String())
}

// OpenSqlite opens the SQLite database file at path, creating it if needed.
func OpenSqlite(ctx context.Context, log logger.Logger, path string) (shared.Connector, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("missing sqlite database path")
	}
	conn, err := openAndPing(ctx, log, constants.ConnectionTypeSqlite, "sqlite", path, path)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	conn.DbSql.SetMaxOpenConns(1)
	return conn, nil
}

func sqlitePathFromDsn(dsn string) (string, error) {
	if dsn == "" {
		return "", errors.New("sqlite connection requires a path or dsn")
	}
	u, err := dburl.Parse(dsn)
	if err != nil {
		return "", errors.Wrapf(err, "error parsing DSN %q", dsn)
	}
	return u.DSN, nil
}

func openAndPing(ctx context.Context, log logger.Logger, connectionType, driver, dsn, redacted string) (*shared.Connection, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %v connection %v", connectionType, redacted)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "error connecting to %v", redacted)
	}
	conn, err := shared.NewConnection(connectionType, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("Successful connection to: ", redacted)
	return conn, nil
}
