package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"charognard/internal/automation"
	"charognard/internal/bulk"
	"charognard/internal/cmdlog"
	"charognard/internal/config"
	"charognard/internal/igclient"
	"charognard/internal/logging"
	"charognard/internal/onboarding"
	"charognard/internal/pacing"
	"charognard/internal/quota"
	"charognard/internal/store"
	"charognard/internal/store/badgerkv"
	"charognard/internal/store/rediskv"
	"charognard/internal/store/sqlitekv"
)

const redisPrefix = "charognard:"

// deps is everything a command needs, built from the config file.
type deps struct {
	cfg     config.Config
	loc     *time.Location
	store   *store.Store
	actions *sqlitekv.DB
	client  *igclient.HTTPClient
	quota   *quota.Governor
	bulk    *bulk.Service
	engine  *automation.Engine
	onboard *onboarding.Flow
}

// account is the identity of the configured session; empty when logged out.
func (d *deps) account() string { return d.client.Session().AccountID() }

func (d *deps) Close() error { return d.store.Close() }

func openBackend(cfg config.StorageConfig) (store.Backend, *sqlitekv.DB, error) {
	switch cfg.Driver {
	case "redis":
		c, err := rediskv.Dial(cfg.RedisAddr, cfg.RedisDB, redisPrefix)
		return c, nil, err
	case "badger":
		db, err := badgerkv.Open(badgerkv.Config{Path: cfg.BadgerDir, SyncWrites: true})
		return db, nil, err
	default:
		db, err := sqlitekv.Open(cfg.DBPath)
		return db, db, err
	}
}

func loadDeps(cctx *cli.Context) (*deps, error) {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Configure(cfg.Logging.Level, cfg.Logging.Format)
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	backend, actions, err := openBackend(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	st := store.New(backend)
	qopts := []quota.Option{quota.WithLocation(loc)}
	if actions != nil {
		qopts = append(qopts, quota.WithActionLog(actions))
	}
	q := quota.New(st, qopts...)
	client := igclient.FromConfig(cfg)
	pacer := pacing.New(pacing.Random(cfg.Pacing))
	return &deps{
		cfg:     cfg,
		loc:     loc,
		store:   st,
		actions: actions,
		client:  client,
		quota:   q,
		bulk:    bulk.New(st, q, client, pacer),
		engine:  automation.New(st, q, client, pacer),
		onboard: onboarding.New(st, client, cfg.Onboarding.DeveloperID),
	}, nil
}

// withDeps wraps a command body with dependency setup and cmdlog accounting.
func withDeps(name string, f func(cctx *cli.Context, d *deps) error) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		return cmdlog.Run(name, func() error {
			d, err := loadDeps(cctx)
			if err != nil {
				return err
			}
			defer d.Close()
			return f(cctx, d)
		})
	}
}
