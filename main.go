package MiniDB

import (
	"context"
	"log/slog"

	"github.com/nickyhof/MiniDB/core"
	"github.com/nickyhof/MiniDB/db"
	"github.com/nickyhof/MiniDB/op"
	"github.com/nickyhof/MiniDB/ps"
)

type options struct {
	order  int
	logger *slog.Logger
}

type Option func(*options)

// WithOrder sets the B-tree order of every index.
func WithOrder(order int) Option {
	return func(o *options) { o.order = order }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Instance is a catalog bound to the store it was loaded from.
type Instance struct {
	Store    ps.SnapshotStore
	database *op.Database
	engine   *db.Engine
}

// Open loads every table snapshot held by store. An empty store gives an
// empty catalog.
func Open(ctx context.Context, store ps.SnapshotStore, opts ...Option) (*Instance, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var (
		dbOpts     []op.Option
		engineOpts []db.Option
	)
	if o.order > 0 {
		dbOpts = append(dbOpts, op.WithOrder(o.order))
	}
	if o.logger != nil {
		dbOpts = append(dbOpts, op.WithLogger(o.logger))
		engineOpts = append(engineOpts, db.WithLogger(o.logger))
	}

	database := op.NewDatabase(dbOpts...)
	if err := database.LoadAll(ctx, store); err != nil {
		return nil, err
	}

	return &Instance{
		Store:    store,
		database: database,
		engine:   db.NewEngine(database, engineOpts...),
	}, nil
}

func (instance *Instance) Engine() *db.Engine {
	return instance.engine
}

func (instance *Instance) Database() *op.Database {
	return instance.database
}

// Save writes the whole catalog back to the instance's store.
func (instance *Instance) Save(ctx context.Context, identity core.Identity) (ps.Transaction, error) {
	return instance.database.SaveAll(ctx, instance.Store, identity)
}
