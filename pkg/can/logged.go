package can

import (
	"context"
	"log/slog"
)

// LogOption selects which bus operations the Logged decorator records.
type LogOption uint8

const (
	LogRead LogOption = 1 << iota
	LogWrite

	LogNone LogOption = 0
	LogAll            = LogRead | LogWrite
)

// NewLogged wraps a Bus and logs the selected operations through the given
// slog.Logger. Frames are logged at Debug level, failures at Error.
func NewLogged(inner Bus, logger *slog.Logger, opts LogOption) Bus {
	return &loggedBus{inner: inner, logger: logger, opts: opts}
}

type loggedBus struct {
	inner  Bus
	logger *slog.Logger
	opts   LogOption
}

func (l *loggedBus) Send(ctx context.Context, frame Frame) error {
	err := l.inner.Send(ctx, frame)
	if l.opts&LogWrite != 0 {
		if err != nil {
			l.logger.LogAttrs(ctx, slog.LevelError, "can send failed",
				slog.String("frame", frame.String()),
				slog.Any("error", err),
			)
		} else {
			l.logger.LogAttrs(ctx, slog.LevelDebug, "can send",
				slog.String("frame", frame.String()),
			)
		}
	}
	return err
}

func (l *loggedBus) Receive(ctx context.Context) (Frame, error) {
	f, err := l.inner.Receive(ctx)
	if l.opts&LogRead != 0 {
		switch {
		case err == nil:
			l.logger.LogAttrs(ctx, slog.LevelDebug, "can receive",
				slog.String("frame", f.String()),
			)
		case ctx.Err() != nil:
			// Timeouts are routine during scans; stay quiet.
		default:
			l.logger.LogAttrs(ctx, slog.LevelError, "can receive failed",
				slog.Any("error", err),
			)
		}
	}
	return f, err
}

func (l *loggedBus) Close() error {
	return l.inner.Close()
}
