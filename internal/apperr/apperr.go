// Package apperr задаёт таксономию ошибок ядра. Сентинелы комбинируются
// с errors.Wrap, проверяются через errors.Is; HTTP-слой мапит их на коды,
// всё остальное считается Internal и наружу не утекает.
package apperr

import "github.com/pkg/errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

func NotFound(msg string) error {
	return errors.Wrap(ErrNotFound, msg)
}

func Conflict(msg string) error {
	return errors.Wrap(ErrConflict, msg)
}

func InvalidInput(msg string) error {
	return errors.Wrap(ErrInvalidInput, msg)
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
