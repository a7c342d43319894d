package app

import "errors"

var (
	ErrBookNotFound    = errors.New("book not found")
	ErrQueryRequired   = errors.New("search query is required")
	ErrCartEmpty       = errors.New("cart is empty")
	ErrInvalidDelta    = errors.New("quantity delta must be non-zero")
	ErrSessionNotFound = errors.New("session not found")
	ErrOrderNotFound   = errors.New("order not found")
)
