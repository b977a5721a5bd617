package dispatch

import (
	"context"
	"log/slog"

	"consentd/internal/contact"
)

// NoopDispatcher logs the message instead of delivering it. Used in local and
// test environments where no provider credentials exist.
type NoopDispatcher struct {
	logger *slog.Logger
}

var _ Dispatcher = (*NoopDispatcher)(nil)

func NewNoop(logger *slog.Logger) *NoopDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopDispatcher{logger: logger}
}

func (d *NoopDispatcher) Name() string { return "noop" }

func (d *NoopDispatcher) Send(ctx context.Context, target contact.Ref, payload Payload) error {
	d.logger.InfoContext(ctx, "dispatch skipped (noop provider)",
		"target_type", string(target.Type),
		"body", RenderBody(payload),
	)
	return nil
}
