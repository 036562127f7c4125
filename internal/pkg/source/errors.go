package source

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/kart-io/dataagent/pkg/errors"
)

// classify maps driver and network errors onto the source errnos.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var e *errors.Errno
	if stderrors.As(err, &e) {
		return err
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.ErrSourceTimeout.WithCause(err)
	}

	var me *mysql.MySQLError
	if stderrors.As(err, &me) {
		switch me.Number {
		case 1044, 1045, 1698:
			return errors.ErrSourceAuthFailed.WithCause(err)
		case 1969, 3024:
			return errors.ErrSourceTimeout.WithCause(err)
		default:
			return errors.ErrInvalidQuery.WithCause(err)
		}
	}

	var pe *pq.Error
	if stderrors.As(err, &pe) {
		switch {
		case pe.Code == "28P01" || pe.Code == "28000":
			return errors.ErrSourceAuthFailed.WithCause(err)
		case pe.Code == "57014":
			return errors.ErrSourceTimeout.WithCause(err)
		case pe.Code.Class() == "08" || pe.Code.Class() == "53" || pe.Code.Class() == "57":
			return errors.ErrSourceUnavailable.WithCause(err)
		default:
			return errors.ErrInvalidQuery.WithCause(err)
		}
	}

	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return errors.ErrSourceTimeout.WithCause(err)
	}

	return errors.ErrSourceUnavailable.WithCause(err)
}

// isConnError reports whether err means the connection itself is gone.
func isConnError(err error) bool {
	var oe *net.OpError
	return stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, sql.ErrConnDone) || stderrors.As(err, &oe)
}
