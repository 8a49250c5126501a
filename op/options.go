package op

import (
	"log/slog"

	"github.com/nickyhof/MiniDB/btree"
)

type options struct {
	order  int
	logger *slog.Logger
}

// Option configures tables and databases.
type Option func(*options)

// WithOrder sets the B-tree order of every index.
func WithOrder(order int) Option {
	return func(o *options) { o.order = order }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{order: btree.DefaultOrder}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}
