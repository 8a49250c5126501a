package db

import "log/slog"

type options struct {
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger used for plan and statement tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}
