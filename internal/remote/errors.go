package remote

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
)

// tag назначает категорию ошибке, полученной от pgx
func tag(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(apperr.NotFound, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return apperr.Wrap(classifyCode(pgErr.Code), op, err)
	}

	// Остальное это ошибки соединения, таймауты и обрывы
	return apperr.Wrap(apperr.Transient, op, err)
}

func classifyCode(code string) apperr.Kind {
	switch code {
	case pgerrcode.InsufficientPrivilege,
		pgerrcode.InvalidAuthorizationSpecification,
		pgerrcode.InvalidPassword:
		return apperr.Permission
	case pgerrcode.ForeignKeyViolation:
		return apperr.NotFound
	}

	if len(code) < 2 {
		return apperr.Unknown
	}
	switch code[:2] {
	case "08", "40", "53", "57", "58":
		return apperr.Transient
	case "22", "23", "42":
		return apperr.Validation
	}
	return apperr.Unknown
}
