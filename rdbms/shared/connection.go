package shared

import (
	"context"
	"database/sql"
	"errors"
)

// Connection wraps a Go native sql.DB and adds the Dialect used to generate DDL and DML for it.
type Connection struct {
	DbSql   *sql.DB
	Dialect Dialect
	DbType  string
}

// NewConnection wraps db, choosing the dialect for dbType.
func NewConnection(dbType string, db *sql.DB) (*Connection, error) {
	d, err := GetDialect(dbType)
	if err != nil {
		return nil, err
	}
	return &Connection{DbSql: db, Dialect: d, DbType: dbType}, nil
}

// Connector:

func (c *Connection) BeginTx(ctx context.Context) (Transacter, error) {
	if c.DbSql == nil {
		return nil, errors.New("connection was not configured correctly: DbSql is missing")
	}
	tx, err := c.DbSql.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (c *Connection) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.DbSql.ExecContext(ctx, query, args...)
}

func (c *Connection) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.DbSql.QueryContext(ctx, query, args...)
}

func (c *Connection) Close() error {
	return c.DbSql.Close()
}

func (c *Connection) GetType() string {
	return c.DbType
}

func (c *Connection) GetDialect() Dialect {
	return c.Dialect
}
