package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"gorm.io/gorm"

	"taskboard-api/domain"
)

// classify maps driver and gorm errors onto the domain error kinds. Errors
// that already carry a domain kind pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{domain.ErrNotFound, domain.ErrForbidden, domain.ErrInvalidInput, domain.ErrStoreUnavailable, domain.ErrConstraintViolation} {
		if errors.Is(err, kind) {
			return err
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) || isConstraintMessage(err) {
		return fmt.Errorf("%w: %w", domain.ErrConstraintViolation, err)
	}
	var netErr net.Error
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) || isBusyMessage(err) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}

func isConstraintMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func isBusyMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "connection refused")
}
