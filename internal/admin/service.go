// Package admin implements the operations behind the admin API: editing
// users and subscriptions, syncing users from Surge Enterprise, checking
// subscriptions and updating settings.
//
// Every operation loads a fresh Configuration, computes the new value of the
// affected fields and writes them back; nothing is cached between calls.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/surge-balancer/internal/fetch"
	"github.com/John-Robertt/surge-balancer/internal/model"
	"github.com/John-Robertt/surge-balancer/internal/store"
	"github.com/John-Robertt/surge-balancer/internal/sub"
	"github.com/John-Robertt/surge-balancer/internal/surgeapi"
	"github.com/John-Robertt/surge-balancer/internal/template"
)

const DefaultConcurrency = 5

type ConfigLoader interface {
	Load(ctx context.Context) *store.Configuration
}

type UserLister interface {
	Users(ctx context.Context, token string) ([]surgeapi.User, error)
}

type Service struct {
	Config   ConfigLoader
	Parsers  sub.Registry
	SurgeAPI UserLister

	// Concurrency bounds the subscription check fan-out (default 5).
	Concurrency  int
	FetchTimeout time.Duration
	// CheckTimeout bounds a whole check batch; 0 means no extra limit.
	CheckTimeout time.Duration
	Transport    http.RoundTripper

	Now    func() time.Time
	Logger *slog.Logger
}

func (s *Service) now() int64 {
	if s.Now != nil {
		return s.Now().UnixMilli()
	}
	return time.Now().UnixMilli()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// writable loads the configuration and fails early on read-only storage so
// that no upstream work is wasted.
func (s *Service) writable(ctx context.Context) (*store.Configuration, error) {
	cfg := s.Config.Load(ctx)
	if !cfg.Features.Writable {
		return nil, store.ErrReadOnly
	}
	return cfg, nil
}

func (s *Service) EditUsers(ctx context.Context, edits UserEdits) error {
	cfg, err := s.writable(ctx)
	if err != nil {
		return err
	}
	users, err := ApplyUserEdits(cfg.Users, edits)
	if err != nil {
		return err
	}
	return cfg.Set(ctx, store.FieldUsers, users)
}

func (s *Service) SetAllUsersEnabled(ctx context.Context, enabled bool) error {
	cfg, err := s.writable(ctx)
	if err != nil {
		return err
	}
	return cfg.Set(ctx, store.FieldUsers, setAllUsersEnabled(cfg.Users, enabled))
}

type SyncResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

func (r SyncResult) Message() string {
	return fmt.Sprintf("Added %d users, updated %d users", r.Added, r.Updated)
}

// SyncUsers copies the Surge Enterprise user list into the local users:
// unknown users are added (disabled), known users get their passcode
// refreshed.
func (s *Service) SyncUsers(ctx context.Context) (SyncResult, error) {
	cfg := s.Config.Load(ctx)
	if cfg.SEAPIToken == "" {
		return SyncResult{}, newError(http.StatusForbidden, "SE_TOKEN_MISSING", "sync_users", "No Surge Enterprise API token set")
	}
	if !cfg.Features.Writable {
		return SyncResult{}, store.ErrReadOnly
	}

	remote, err := s.SurgeAPI.Users(ctx, cfg.SEAPIToken)
	if err != nil {
		return SyncResult{}, upstreamError(err)
	}

	users := cfg.Users.Clone()
	var res SyncResult
	for _, ru := range remote {
		name := strings.TrimSpace(ru.User)
		passcode := strings.TrimSpace(ru.Passcode)
		if name == "" {
			continue
		}
		old, ok := users[name]
		switch {
		case !ok:
			users[name] = model.User{Passcode: passcode}
			res.Added++
		case old.Passcode != passcode:
			old.Passcode = passcode
			users[name] = old
			res.Updated++
		}
	}
	s.logger().Info("surge enterprise users synced", "remote", len(remote), "added", res.Added, "updated", res.Updated)

	if res.Added == 0 && res.Updated == 0 {
		return res, nil
	}
	return res, cfg.Set(ctx, store.FieldUsers, users)
}

func upstreamError(err error) error {
	status := http.StatusBadGateway
	var fe *fetch.FetchError
	if errors.As(err, &fe) && fe.Status == http.StatusGatewayTimeout {
		status = http.StatusGatewayTimeout
	}
	var se *surgeapi.Error
	if errors.As(err, &se) {
		return &Error{Status: status, AppError: se.AppError, Cause: err}
	}
	return &Error{
		Status: status,
		AppError: model.AppError{
			Code:    "SURGE_API_ERROR",
			Message: err.Error(),
			Stage:   "surge_api",
		},
		Cause: err,
	}
}

func (s *Service) EditSubscriptions(ctx context.Context, edits SubscriptionEdits) error {
	cfg, err := s.writable(ctx)
	if err != nil {
		return err
	}
	subs, caches, err := ApplySubscriptionEdits(cfg.Subscriptions, cfg.SubscriptionCaches, edits, cfg.SubscriptionTypes, s.now())
	if err != nil {
		return err
	}
	if err := cfg.Set(ctx, store.FieldSubscriptions, subs); err != nil {
		return err
	}
	return cfg.Set(ctx, store.FieldSubscriptionCaches, caches)
}

func (s *Service) SetAllSubscriptionsEnabled(ctx context.Context, enabled bool) error {
	cfg, err := s.writable(ctx)
	if err != nil {
		return err
	}
	return cfg.Set(ctx, store.FieldSubscriptions, setAllSubscriptionsEnabled(cfg.Subscriptions, enabled))
}

type CheckResult struct {
	Name      string `json:"name"`
	NodeCount int    `json:"nodeCount"`
}

// CheckSubscriptions fetches and parses the named subscriptions (every
// enabled one when names is empty) and caches their bodies. The batch fails
// as a whole: the first error cancels the remaining fetches and nothing is
// written.
func (s *Service) CheckSubscriptions(ctx context.Context, names []string) ([]CheckResult, error) {
	cfg, err := s.writable(ctx)
	if err != nil {
		return nil, err
	}

	targets, err := checkTargets(cfg.Subscriptions, names)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	if s.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.CheckTimeout)
		defer cancel()
	}

	limit := s.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	results := make([]CheckResult, len(targets))
	caches := make([]model.SubscriptionCache, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, name := range targets {
		info := cfg.Subscriptions[name]
		g.Go(func() error {
			body, err := fetch.FetchTextWithOptions(gctx, fetch.KindSubscription, info.URL, fetch.Options{
				Timeout:   s.FetchTimeout,
				Transport: s.Transport,
			})
			if err != nil {
				return err
			}
			nodes, err := s.Parsers.Parse(info.Type, body, sub.Options{SourceURL: info.URL, UDPRelay: info.UDPRelay})
			if err != nil {
				return err
			}
			results[i] = CheckResult{Name: name, NodeCount: len(nodes)}
			caches[i] = model.SubscriptionCache{Body: body, UpdatedAt: s.now(), NodeCount: len(nodes)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger().Warn("subscription check failed", "subscriptions", len(targets), "err", err)
		return nil, err
	}

	out := cfg.SubscriptionCaches.Clone()
	for i, name := range targets {
		out[name] = caches[i]
	}
	if err := cfg.Set(ctx, store.FieldSubscriptionCaches, out); err != nil {
		return nil, err
	}
	s.logger().Info("subscriptions checked", "subscriptions", len(targets))
	return results, nil
}

func checkTargets(subs model.SubscriptionRecord, names []string) ([]string, error) {
	if len(names) == 0 {
		var out []string
		for _, name := range subs.Ordered() {
			if subs[name].IsEnabled() {
				out = append(out, name)
			}
		}
		return out, nil
	}

	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if _, ok := subs[name]; !ok {
			return nil, notFound("check_subscriptions", "Subscription %s doesn't exist", name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// EditTemplate stores a new Surge profile template. An empty template
// clears it; anything else must carry valid anchors.
func (s *Service) EditTemplate(ctx context.Context, text string) error {
	cfg, err := s.writable(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) != "" {
		if err := template.Validate(text); err != nil {
			return err
		}
	}
	return cfg.Set(ctx, store.FieldTemplate, text)
}

func (s *Service) EditSEAPIToken(ctx context.Context, token string) error {
	cfg, err := s.writable(ctx)
	if err != nil {
		return err
	}
	return cfg.Set(ctx, store.FieldSEAPIToken, strings.TrimSpace(token))
}
