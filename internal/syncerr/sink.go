package syncerr

import (
	"fmt"
	"log/slog"
)

// LogAndContinue is the domain wrapper for Upload/Delete/Download failures:
// it logs at Warn with structured context and hands the classified error
// back so the caller's data-preserving fallback runs. Nothing is re-raised.
func LogAndContinue(logger *slog.Logger, kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	wrapped := New(kind, op, err)

	logger.Warn("sync operation failed, data preserved for next cycle",
		slog.String("kind", kind.String()),
		slog.String("op", op),
		slog.String("error", err.Error()),
	)

	return wrapped
}

// Sink is the unhandled-failure sink at the cycle boundary. It logs at Error
// and returns; the scheduler marks the cycle failed and the process
// continues to the next tick.
func Sink(logger *slog.Logger, op string, err error) {
	if err == nil {
		return
	}

	logger.Error("unhandled sync failure",
		slog.String("op", op),
		slog.String("kind", KindOf(err).String()),
		slog.String("error", err.Error()),
	)
}

// Recovered converts a recovered panic value into a KindUnknown error for
// the sink. The scheduler defers this around every cycle.
func Recovered(op string, r any) error {
	if r == nil {
		return nil
	}

	if err, ok := r.(error); ok {
		return New(KindUnknown, op, err)
	}

	return New(KindUnknown, op, fmt.Errorf("panic: %v", r))
}
