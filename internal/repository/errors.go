// Package repository defines the persistence contracts used by the
// reservation engine together with their MySQL implementation. The
// sentinel values below let the service layer tell a missing row apart
// from a transaction that lost a lock race.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique key (e.g. venue + table code) is
// already taken.
var ErrDuplicate = errors.New("duplicate key")

// ErrLockConflict is returned when MySQL aborts a statement because of a
// deadlock or a lock wait timeout. The whole transaction has been rolled
// back and the caller may retry it.
var ErrLockConflict = errors.New("lock conflict")

const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// translate maps driver errors onto the sentinels above. Other errors are
// returned unchanged.
func translate(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}
	switch myErr.Number {
	case mysqlDuplicateEntry:
		return errors.Join(ErrDuplicate, err)
	case mysqlLockWaitTimeout, mysqlDeadlock:
		return errors.Join(ErrLockConflict, err)
	}
	return err
}
