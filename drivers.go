package ormion

import (
	"errors"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	// Drivers
	_ "github.com/jackc/pgx/v5/stdlib"
)

// driverErrorCode extracts the vendor code from a driver error, if any.
func driverErrorCode(err error) string {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return strconv.Itoa(int(myErr.Number))
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return strconv.Itoa(int(liteErr.ExtendedCode))
	}

	return ""
}
