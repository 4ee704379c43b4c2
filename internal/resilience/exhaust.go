package resilience

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrExhausted marks an operation whose retries all failed.
var ErrExhausted = eris.New("retries exhausted")

// ExitFunc terminates the process. Replaced in tests.
type ExitFunc func(code int)

// DefaultExit is os.Exit.
var DefaultExit ExitFunc = os.Exit

// Exhausted decides what happens after the last failed attempt. In non-fatal
// mode it returns an error wrapping ErrExhausted so the caller can treat it as
// a failure sentinel. In fatal mode it logs and calls exit(1); if exit returns
// (tests), the wrapped error is returned as well.
func Exhausted(err error, operation string, fatal bool, exit ExitFunc) error {
	if err == nil {
		return nil
	}
	wrapped := eris.Wrapf(ErrExhausted, "%s: %v", operation, err)
	if !fatal {
		zap.L().Warn("retries exhausted, continuing",
			zap.String("operation", operation),
			zap.Error(err),
		)
		return wrapped
	}

	zap.L().Error("retries exhausted, terminating",
		zap.String("operation", operation),
		zap.Error(err),
	)
	_ = zap.L().Sync()
	if exit == nil {
		exit = DefaultExit
	}
	exit(1)
	return wrapped
}

// IsExhausted reports whether err came from Exhausted.
func IsExhausted(err error) bool {
	return eris.Is(err, ErrExhausted)
}
