package domain

import "errors"

var (
	// ErrNotFound возвращается, когда запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientCredits возвращается, когда у пользователя закончились кредиты.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrUnauthenticated возвращается без валидного токена.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidInput некорректные входные данные.
	ErrInvalidInput = errors.New("invalid input")
)
