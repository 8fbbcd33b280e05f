package main

import (
	"log/slog"
	"net/http"

	"github.com/John-Robertt/surge-balancer/internal/admin"
	"github.com/John-Robertt/surge-balancer/internal/auth"
	"github.com/John-Robertt/surge-balancer/internal/config"
	"github.com/John-Robertt/surge-balancer/internal/httpapi"
	"github.com/John-Robertt/surge-balancer/internal/store"
	"github.com/John-Robertt/surge-balancer/internal/sub"
	"github.com/John-Robertt/surge-balancer/internal/surgeapi"
)

// app is the object graph shared by the commands.
type app struct {
	redis   *store.RedisPool
	loader  *store.Loader
	admin   *admin.Service
	handler http.Handler
}

func newApp(settings *config.Config, logger *slog.Logger, getenv func(string) string) *app {
	parsers := sub.Default()
	pool := &store.RedisPool{}
	loader := &store.Loader{
		Getenv:            getenv,
		Redis:             pool,
		SubscriptionTypes: parsers.Types(),
		Logger:            logger,
	}
	svc := &admin.Service{
		Config:  loader,
		Parsers: parsers,
		SurgeAPI: &surgeapi.Client{
			BaseURL: settings.SurgeAPI.BaseURL,
			Timeout: settings.FetchTimeout,
		},
		Concurrency:  settings.Check.Concurrency,
		FetchTimeout: settings.FetchTimeout,
		CheckTimeout: settings.CheckTimeout,
		Logger:       logger,
	}
	return &app{
		redis:  pool,
		loader: loader,
		admin:  svc,
		handler: httpapi.NewHandler(httpapi.Options{
			Config:        loader,
			Admin:         svc,
			Parsers:       parsers,
			Auth:          auth.Checker{Getenv: getenv},
			PublicBaseURL: settings.PublicBaseURL,
			Logger:        logger,
		}),
	}
}

func (a *app) Close() error { return a.redis.Close() }
