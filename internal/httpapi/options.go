package httpapi

import (
	"log/slog"

	"github.com/John-Robertt/surge-balancer/internal/admin"
	"github.com/John-Robertt/surge-balancer/internal/auth"
	"github.com/John-Robertt/surge-balancer/internal/sub"
)

// Options wires the HTTP API to the rest of the service.
type Options struct {
	// Config is read on every request; Admin.Config is normally the same
	// loader.
	Config  admin.ConfigLoader
	Admin   *admin.Service
	Parsers sub.Registry
	Auth    auth.Checker

	// PublicBaseURL is the external origin written into #!MANAGED-CONFIG.
	// Empty means "derive it from the request".
	PublicBaseURL string

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Parsers == nil {
		o.Parsers = sub.Default()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
