package base

import "time"

// Binary size multipliers
const (
	KBYTE = 1 << 10
	MBYTE = 1 << 20
	GBYTE = 1 << 30
	TBYTE = 1 << 40
)

// Defaults for broker operation timing
const (
	DefaultResyncInterval  = 5 * time.Second
	DefaultReclaimInterval = 30 * time.Second
	DefaultRequestTimeout  = 2 * time.Minute
)

// RequestID is a context key under which the current request identifier travels
type contextKey string

// RequestUUID is used to propagate a request identifier through contexts
const RequestUUID contextKey = "RequestUUID"
