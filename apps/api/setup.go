package main

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/school"
	"github.com/trezcool/masomo-portal/core/session"
	"github.com/trezcool/masomo-portal/core/user"
	"github.com/trezcool/masomo-portal/services/broadcast"
	"github.com/trezcool/masomo-portal/storage/database"
	inmemdb "github.com/trezcool/masomo-portal/storage/database/inmem"
	boiledrepos "github.com/trezcool/masomo-portal/storage/database/sqlboiler"
	"github.com/trezcool/masomo-portal/storage/kv"
	"github.com/trezcool/masomo-portal/storage/mongodb"
)

type repositories struct {
	users   user.Repository
	schools school.Repository
	close   func(ctx context.Context) error
}

func setUpRepos(ctx context.Context, conf *core.Config) (*repositories, error) {
	switch conf.Database.Engine {
	case core.EngineMemory:
		db := inmemdb.Open()
		return &repositories{
			users:   inmemdb.NewUserRepository(db),
			schools: inmemdb.NewSchoolRepository(db),
			close:   func(context.Context) error { return nil },
		}, nil

	case core.EnginePostgres:
		db, err := setUpDB(ctx, conf)
		if err != nil {
			return nil, err
		}
		return &repositories{
			users:   boiledrepos.NewUserRepository(db),
			schools: boiledrepos.NewSchoolRepository(db),
			close:   func(context.Context) error { return db.Close() },
		}, nil

	case core.EngineMongoDB:
		db, err := mongodb.Open(ctx, conf)
		if err != nil {
			return nil, err
		}
		if err = mongodb.CreateIndexes(ctx, db); err != nil {
			_ = db.Client().Disconnect(ctx)
			return nil, err
		}
		return &repositories{
			users:   mongodb.NewUserRepository(db),
			schools: mongodb.NewSchoolRepository(db),
			close:   func(ctx context.Context) error { return db.Client().Disconnect(ctx) },
		}, nil
	}
	return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}

func setUpDB(ctx context.Context, conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type sessionStores struct {
	manager *session.Manager
	close   func() error
}

// setUpSessions builds the tab & browser tiers of the session stores, and the notifier linking the tabs of a browser.
func setUpSessions(ctx context.Context, conf *core.Config, logger core.Logger) (*sessionStores, error) {
	sc := conf.Session
	opts := session.Options{
		TTL:             sc.TTL,
		DualWriteLegacy: sc.DualWriteLegacy,
		Logger:          logger,
	}

	switch sc.Backend {
	case core.BackendMemory:
		tabs, browsers := kv.NewMemory(sc.TTL), kv.NewMemory(sc.TTL)
		opts.Notifier = broadcast.NewLocal()
		return &sessionStores{
			manager: session.NewManager(tabs, browsers, opts),
			close: func() error {
				_ = tabs.Close()
				return browsers.Close()
			},
		}, nil

	case core.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		})
		tabs := kv.NewRedis(client, sc.KeyPrefix+":tabs", sc.TTL)
		if err := tabs.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, errors.Wrap(err, "connecting to redis")
		}
		browsers := kv.NewRedis(client, sc.KeyPrefix+":browsers", sc.TTL)
		opts.Notifier = broadcast.NewRedis(client, sc.KeyPrefix, logger)
		return &sessionStores{
			manager: session.NewManager(tabs, browsers, opts),
			close:   client.Close,
		}, nil
	}
	return nil, errors.Errorf("unknown session backend %q", sc.Backend)
}
