package database

import (
	"strconv"

	"github.com/pkg/errors"
)

// Dialect captures the per-driver differences the rest of the tool cares about.
type Dialect struct {
	// Driver is the database/sql driver name
	Driver string

	// Transactional reports whether DDL and DML can be wrapped in a single
	// transaction. ClickHouse has no multi-statement transactions.
	Transactional bool

	// Classifier recognizes idempotency errors for this driver
	Classifier Classifier

	// Savepoints is set when a failed statement aborts the enclosing
	// transaction, so skipped errors must be rolled back to a savepoint
	Savepoints bool

	numbered bool
	quote    byte
}

var dialects = map[string]*Dialect{
	DriverClickHouse: {
		Driver:     DriverClickHouse,
		Classifier: ClickHouseClassifier{},
		quote:      '`',
	},
	DriverMySQL: {
		Driver:        DriverMySQL,
		Transactional: true,
		Classifier:    MySQLClassifier{},
		quote:         '`',
	},
	DriverPostgres: {
		Driver:        DriverPostgres,
		Transactional: true,
		Classifier:    PostgresClassifier{},
		Savepoints:    true,
		numbered:      true,
		quote:         '"',
	},
	DriverSQLite: {
		Driver:        DriverSQLite,
		Transactional: true,
		Classifier:    TextClassifier{},
		quote:         '"',
	},
}

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (*Dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, errors.Errorf("unsupported driver: %q", driver)
	}

	return d, nil
}

// Placeholder returns the bind parameter marker for the n-th (1-based) argument.
func (d *Dialect) Placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}

	return "?"
}

// Quote quotes a possibly qualified identifier for this dialect.
func (d *Dialect) Quote(name string) string {
	return QuoteIdentifier(name, d.quote)
}

// Truncate returns the statement that empties table. SQLite has no TRUNCATE.
func (d *Dialect) Truncate(table string) string {
	if d.Driver == DriverSQLite {
		return "DELETE FROM " + d.Quote(table)
	}

	return "TRUNCATE TABLE " + d.Quote(table)
}

// CountRows returns a query selecting the number of rows in table.
func (d *Dialect) CountRows(table string) string {
	return "SELECT COUNT(*) FROM " + d.Quote(table)
}
