package logging

import (
	"go.uber.org/zap"
)

// New builds the process logger: JSON in production, console otherwise.
func New(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// Must is New that falls back to a no-op logger instead of failing.
func Must(production bool) *zap.Logger {
	l, err := New(production)
	if err != nil {
		return zap.NewNop()
	}
	return l
}
