// Package connection contains the connection state manager, the target
// descriptor, and the SQLConnection type used to query the configured engine.
package connection

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/newrelic/infra-integrations-sdk/v3/log"

	// Drivers are registered for their side effects; the mysql and oracle
	// drivers are pulled in by descriptor.go.
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
)

// SQLConnection represents a wrapper around a live database connection
type SQLConnection struct {
	Connection *sqlx.DB
	Host       string
}

// Close closes the SQL connection. If an error occurs
// it is logged as a warning.
func (sc *SQLConnection) Close() {
	if err := sc.Connection.Close(); err != nil {
		log.Warn("Unable to close SQL Connection: %s", err.Error())
	}
}

// Query runs a query and loads results into v
func (sc *SQLConnection) Query(v interface{}, query string) error {
	log.Debug("Running query: %s", query)
	return sc.Connection.Select(v, query)
}

// QueryContext runs a query under ctx and loads results into v
func (sc *SQLConnection) QueryContext(ctx context.Context, v interface{}, query string, queryArgs ...interface{}) error {
	log.Debug("Running query: %s", query)
	return sc.Connection.SelectContext(ctx, v, query, queryArgs...)
}

// Queryx runs a query and returns a set of rows
func (sc *SQLConnection) Queryx(query string) (*sqlx.Rows, error) {
	return sc.Connection.Queryx(query)
}

// QueryxContext runs a query under ctx and returns a set of rows
func (sc *SQLConnection) QueryxContext(ctx context.Context, query string, queryArgs ...interface{}) (*sqlx.Rows, error) {
	return sc.Connection.QueryxContext(ctx, query, queryArgs...)
}

// Session pins a single underlying connection. Session-scoped directives such
// as plan mode apply to every subsequent statement on it, so callers that
// toggle engine state must do all their work through one session.
func (sc *SQLConnection) Session(ctx context.Context) (*sqlx.Conn, error) {
	return sc.Connection.Connx(ctx)
}
