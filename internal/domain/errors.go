package domain

import "errors"

var (
	ErrInvalidPrice      = errors.New("limit price must be positive")
	ErrInvalidVolume     = errors.New("volume must be positive")
	ErrUnknownSide       = errors.New("side must be buy or sell")
	ErrOwnerRequired     = errors.New("owner required")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidID         = errors.New("invalid id")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrUnknownAsset      = errors.New("unknown asset")
)
