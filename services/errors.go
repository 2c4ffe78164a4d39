package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrorKind классифицирует ошибки ядра
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindStorage    ErrorKind = "storage"
)

// Error - ошибка ядра с видом и операцией
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает ошибки по виду, чтобы errors.Is(err, ErrConflict) работал для любой конфликтной ошибки
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrStorage    = &Error{Kind: KindStorage}
)

// KindOf возвращает вид ошибки; неизвестные ошибки считаются ошибками хранилища
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

func validationError(op string, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(op string, format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

func conflictError(op string, err error, format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

func storageError(op string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Message: "ошибка хранилища", Err: err}
}

// classifyDBError переводит ошибку gorm/pgx в таксономию ядра
func classifyDBError(op string, err error, what string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundError(op, "%s не найден", what)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return conflictError(op, err, "%s уже существует", what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return conflictError(op, err, "%s уже существует", what)
		case "40001", "40P01":
			return conflictError(op, err, "параллельное изменение: %s", what)
		}
	}
	return storageError(op, err)
}
