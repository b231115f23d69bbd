package core

import (
	"context"
	"time"

	"github.com/orgmirror/orgmirror/pkg/cache"
	"github.com/orgmirror/orgmirror/pkg/database"
	"github.com/orgmirror/orgmirror/pkg/delegate"
	"github.com/orgmirror/orgmirror/pkg/directory"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// errors
var (
	ErrNilCore = errors.New("core is nil")
)

// Config bundles everything the process needs to build the object
// graph; it is assembled in cmd from the configuration file and passed
// down, nothing below reads configuration on its own.
type Config struct {
	// DatabaseDSN is the MySQL connection string of the persisted cache.
	DatabaseDSN string `valid:"required"`

	// LDAP is the connection setup of the source of record.
	LDAP directory.LDAPConfig

	// Sync is the directory layout mirrored by the synchronizer.
	Sync cache.Config

	// ResyncInterval is the period of the full resynchronization loop;
	// zero disables periodic resync.
	ResyncInterval time.Duration
}

// Core bundles the mirror's object graph: the directory source, the
// persisted and in-memory caches, the synchronizer and the delegation
// manager.
type Core struct {
	source directory.Source
	index  *cache.Index
	sync   *cache.Synchronizer
	grants *delegate.Manager
	config Config
	logger *zap.Logger
}

// New constructs the whole graph from the configuration, establishing
// the database and directory connections; the first full resync
// happens in Init.
func New(cfg Config, logger *zap.Logger) (*Core, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("[core]")

	conn, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	source, err := directory.NewLDAPSource(cfg.LDAP, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize directory source")
	}

	cacheStore, err := cache.NewMySQLStore(conn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize cache store")
	}

	grantStore, err := delegate.NewMySQLStore(conn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize grant store")
	}

	index := cache.NewIndex(logger)

	grants, err := delegate.NewManager(grantStore, index, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize delegate manager")
	}

	sync, err := cache.NewSynchronizer(source, cacheStore, index, grants, cfg.Sync, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize synchronizer")
	}

	index.SetRefresher(sync)

	return &Core{
		source: source,
		index:  index,
		sync:   sync,
		grants: grants,
		config: cfg,
		logger: logger,
	}, nil
}

// Init runs the initial full resynchronization, populating both cache
// layers before the core is used.
func (c *Core) Init(ctx context.Context) error {
	if c == nil {
		return ErrNilCore
	}

	c.logger.Info("initializing the core")

	if _, err := c.index.Ensure(ctx); err != nil {
		return errors.Wrap(err, "initial resync failed")
	}

	return nil
}

// Run blocks, resynchronizing the mirror at the configured interval
// until the context is cancelled.
func (c *Core) Run(ctx context.Context) error {
	if c == nil {
		return ErrNilCore
	}

	if c.config.ResyncInterval == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(c.config.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if _, err := c.sync.FullResync(ctx); err != nil {
				// the previous snapshot stays live; retry next tick
				c.logger.Error("periodic resync failed", zap.Error(err))
			}
		}
	}
}

// Index returns the in-memory directory index.
func (c *Core) Index() *cache.Index {
	return c.index
}

// Synchronizer returns the mutation surface of the mirror.
func (c *Core) Synchronizer() *cache.Synchronizer {
	return c.sync
}

// Delegates returns the delegation manager.
func (c *Core) Delegates() *delegate.Manager {
	return c.grants
}
