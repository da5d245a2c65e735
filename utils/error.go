package utils

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

var ErrorRecordNotFound = errors.New("record not found")

// IsDuplicateEntryErr reports whether err is a MySQL duplicate key violation
// (error 1062). Used to turn unique-index races into retryable or
// user-reportable conditions instead of opaque persistence failures.
func IsDuplicateEntryErr(err error) bool {
	var myErr *mysqlDriver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
