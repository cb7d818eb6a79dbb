package apperr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

// Kind определяет категорию ошибки, назначаемую в месте её возникновения
type Kind int

const (
	Unknown Kind = iota
	Transient
	Permission
	NotFound
	Validation
	AnchorUnavailable
	SessionExpired
	LocalStore
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permission:
		return "permission"
	case NotFound:
		return "not_found"
	case Validation:
		return "validation"
	case AnchorUnavailable:
		return "anchor_unavailable"
	case SessionExpired:
		return "session_expired"
	case LocalStore:
		return "local_store"
	default:
		return "unknown"
	}
}

// Сигнальные ошибки для сравнения через errors.Is
var (
	ErrTransient         = &Error{Kind: Transient}
	ErrPermission        = &Error{Kind: Permission}
	ErrNotFound          = &Error{Kind: NotFound}
	ErrValidation        = &Error{Kind: Validation}
	ErrAnchorUnavailable = &Error{Kind: AnchorUnavailable}
	ErrSessionExpired    = &Error{Kind: SessionExpired}
	ErrLocalStore        = &Error{Kind: LocalStore}
)

// Error представляет ошибку с явно заданной категорией
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// New создает ошибку заданной категории с текстом
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap помечает err категорией kind. Возвращает nil, если err == nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает только категорию, если target является сигнальной ошибкой
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf возвращает категорию первой помеченной ошибки в цепочке.
// Непомеченные сетевые ошибки считаются временными.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Unknown
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return Transient
	}
	return Unknown
}

// IsRetryable сообщает, можно ли повторить операцию после этой ошибки
func IsRetryable(err error) bool {
	return KindOf(err) == Transient
}
