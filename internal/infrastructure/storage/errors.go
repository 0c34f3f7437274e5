package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"

	"BillsScanner/internal/domain"
)

// transientCodes are Postgres conditions that clear up on their own: cancellations, admin
// shutdowns, serialization conflicts and connection exhaustion.
var transientCodes = map[pq.ErrorCode]bool{
	"57014": true, // query_canceled
	"57P01": true, // admin_shutdown
	"57P03": true, // cannot_connect_now
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
}

// classify marks faults worth retrying with domain.ErrTransient and leaves the rest alone.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isTransient(err) {
		return domain.TransientError(err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return transientCodes[pqErr.Code] || pqErr.Code.Class() == "08"
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
