package models

import "errors"

// ErrNotFound distinguishes "no such short code" from an operation failure.
var ErrNotFound = errors.New("short url not found")
