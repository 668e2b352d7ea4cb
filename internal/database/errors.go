package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidInput is returned for form values rejected before any SQL runs.
	ErrInvalidInput = errors.New("invalid input")
	// ErrManufacturerInUse is returned when a manufacturer still has printer models.
	ErrManufacturerInUse = errors.New("manufacturer is referenced by printer models")
)

// InUseError reports a rejected manufacturer delete.
type InUseError struct {
	Manufacturer string
	Models       int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("manufacturer %q is used by %d printer model(s)", e.Manufacturer, e.Models)
}

func (e *InUseError) Is(target error) bool {
	return target == ErrManufacturerInUse
}

// ErrorKind groups failures the way they are reported to the operator.
type ErrorKind int

const (
	KindStatement ErrorKind = iota
	KindConnectivity
	KindReferentialGuard
	KindNotFound
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectivity:
		return "connection error"
	case KindReferentialGuard:
		return "in use"
	case KindNotFound:
		return "not found"
	case KindInvalidInput:
		return "invalid input"
	default:
		return "SQL error"
	}
}

// Classify maps an error returned by this package onto an ErrorKind.
func Classify(err error) ErrorKind {
	var (
		netErr     net.Error
		connectErr *pgconn.ConnectError
	)
	switch {
	case errors.Is(err, ErrManufacturerInUse):
		return KindReferentialGuard
	case errors.Is(err, ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.As(err, &connectErr),
		errors.As(err, &netErr):
		return KindConnectivity
	default:
		return KindStatement
	}
}

// Describe renders an error as a one-line operator message.
func Describe(err error) string {
	return fmt.Sprintf("%s: %v", Classify(err), err)
}
