package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/meridianbi/gatekeeper/internal/conflict"
	"github.com/meridianbi/gatekeeper/internal/gateway"
	"github.com/meridianbi/gatekeeper/internal/impute"
	"github.com/meridianbi/gatekeeper/internal/resolver"
	"github.com/meridianbi/gatekeeper/internal/runlog"
)

// initGateway opens the configured master-data gateway wrapped in the
// schema cache.
func initGateway(ctx context.Context) (gateway.Gateway, error) {
	var gw gateway.Gateway

	switch cfg.Gateway.Driver {
	case "sqlite":
		dsn := cfg.Gateway.DatabaseURL
		if dsn == "" {
			dsn = "gatekeeper.db"
		}
		g, err := gateway.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		gw = g
	case "postgres":
		g, err := gateway.NewPostgres(ctx, cfg.Gateway.DatabaseURL, &gateway.PoolConfig{
			MaxConns:      cfg.Gateway.MaxConns,
			MinConns:      cfg.Gateway.MinConns,
			QueriesPerSec: cfg.Gateway.QueriesPerSec,
			QueryBurst:    cfg.Gateway.QueryBurst,
		})
		if err != nil {
			return nil, err
		}
		gw = g
	default:
		return nil, eris.Errorf("unsupported gateway driver: %s", cfg.Gateway.Driver)
	}

	ttl := time.Duration(cfg.Gateway.SchemaTTLSecs) * time.Second
	return gateway.NewCached(gw, gateway.NewSchemaCache(ttl)), nil
}

// initRunlog opens the configured run audit store.
func initRunlog(ctx context.Context) (runlog.Store, error) {
	switch cfg.Runlog.Driver {
	case "sqlite":
		dsn := cfg.Runlog.DatabaseURL
		if dsn == "" {
			dsn = "gatekeeper.db"
		}
		return runlog.NewSQLite(dsn)
	case "postgres":
		return runlog.NewPostgres(ctx, cfg.Runlog.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported runlog driver: %s", cfg.Runlog.Driver)
	}
}

func resolverOptions() resolver.Options {
	return resolver.Options{
		ConfidenceThreshold: cfg.Resolver.ConfidenceThreshold,
		NameField:           cfg.Resolver.NameField,
		CodeField:           cfg.Resolver.CodeField,
		MaxAlternatives:     cfg.Resolver.MaxAlternatives,
		Workers:             cfg.Resolver.Workers,
	}
}

func detectorOptions() conflict.Options {
	return conflict.Options{Tolerance: cfg.Detector.Tolerance}
}

func imputerOptions() impute.Options {
	return impute.Options{
		Strategy:  cfg.Imputer.Strategy,
		Neighbors: cfg.Imputer.Neighbors,
	}
}
