package database

import (
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const (
	// KindOther is any error that isn't an idempotency violation
	KindOther ErrorKind = iota

	// KindAlreadyExists means the object a statement creates is already there
	KindAlreadyExists

	// KindDuplicate means the statement would insert a duplicate key or column
	KindDuplicate
)

type (
	// ErrorKind classifies database errors for idempotent script re-application.
	ErrorKind int

	// Classifier maps a driver error to an ErrorKind.
	Classifier interface {
		Classify(error) ErrorKind
	}

	// TextClassifier matches "already exists" and "duplicate" in the error
	// message, case-insensitively. It is the fallback for every driver.
	TextClassifier struct{}

	// ClickHouseClassifier inspects ClickHouse exception codes.
	ClickHouseClassifier struct{}

	// MySQLClassifier inspects MySQL server error numbers.
	MySQLClassifier struct{}

	// PostgresClassifier inspects Postgres SQLSTATE codes.
	PostgresClassifier struct{}
)

// alreadyExistsPatterns are matched against lower-cased error text.
var (
	alreadyExistsPatterns = []string{"already exists"}
	duplicatePatterns     = []string{"duplicate"}
)

// ClickHouse server error codes (see ErrorCodes.cpp)
var clickHouseKinds = map[int32]ErrorKind{
	15:  KindDuplicate,     // DUPLICATE_COLUMN
	57:  KindAlreadyExists, // TABLE_ALREADY_EXISTS
	82:  KindAlreadyExists, // DATABASE_ALREADY_EXISTS
	609: KindAlreadyExists, // FUNCTION_ALREADY_EXISTS
}

var mysqlKinds = map[uint16]ErrorKind{
	1007: KindAlreadyExists, // ER_DB_CREATE_EXISTS
	1050: KindAlreadyExists, // ER_TABLE_EXISTS_ERROR
	1304: KindAlreadyExists, // ER_SP_ALREADY_EXISTS
	1359: KindAlreadyExists, // ER_TRG_ALREADY_EXISTS
	1060: KindDuplicate,     // ER_DUP_FIELDNAME
	1061: KindDuplicate,     // ER_DUP_KEYNAME
	1062: KindDuplicate,     // ER_DUP_ENTRY
}

var postgresKinds = map[string]ErrorKind{
	"42P07": KindAlreadyExists, // duplicate_table
	"42P06": KindAlreadyExists, // duplicate_schema
	"42P04": KindAlreadyExists, // duplicate_database
	"42710": KindAlreadyExists, // duplicate_object
	"42723": KindAlreadyExists, // duplicate_function
	"42712": KindAlreadyExists, // duplicate_alias
	"42701": KindDuplicate,     // duplicate_column
	"23505": KindDuplicate,     // unique_violation
}

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case KindAlreadyExists:
		return "already_exists"
	case KindDuplicate:
		return "duplicate"
	default:
		return "other"
	}
}

// Idempotent reports whether re-running the statement that produced this kind
// of error can be safely skipped.
func (k ErrorKind) Idempotent() bool {
	return k == KindAlreadyExists || k == KindDuplicate
}

// Classify matches the error text against the idempotency patterns.
func (TextClassifier) Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}

	msg := strings.ToLower(err.Error())
	for _, p := range alreadyExistsPatterns {
		if strings.Contains(msg, p) {
			return KindAlreadyExists
		}
	}

	for _, p := range duplicatePatterns {
		if strings.Contains(msg, p) {
			return KindDuplicate
		}
	}

	return KindOther
}

// Classify maps a *clickhouse.Exception code, falling back to the error text.
func (ClickHouseClassifier) Classify(err error) ErrorKind {
	var exc *clickhouse.Exception
	if errors.As(err, &exc) {
		if kind, ok := clickHouseKinds[exc.Code]; ok {
			return kind
		}
	}

	return TextClassifier{}.Classify(err)
}

// Classify maps a *mysql.MySQLError number, falling back to the error text.
func (MySQLClassifier) Classify(err error) ErrorKind {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if kind, ok := mysqlKinds[myErr.Number]; ok {
			return kind
		}
	}

	return TextClassifier{}.Classify(err)
}

// Classify maps a *pgconn.PgError SQLSTATE, falling back to the error text.
func (PostgresClassifier) Classify(err error) ErrorKind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if kind, ok := postgresKinds[pgErr.Code]; ok {
			return kind
		}
	}

	return TextClassifier{}.Classify(err)
}
