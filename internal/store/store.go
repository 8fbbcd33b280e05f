// Package store loads the Surge Balancer configuration from the process
// environment or from Redis, and writes it back one field at a time.
//
// Loading never fails: every problem becomes a warning and the affected
// field falls back to its empty value.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/John-Robertt/surge-balancer/internal/auth"
	"github.com/John-Robertt/surge-balancer/internal/model"
)

type StorageType string

const (
	StorageEnv   StorageType = "env"
	StorageRedis StorageType = "redis"
)

type Features struct {
	Writable bool `json:"writable"`
}

// Configuration is rebuilt from storage for every request that needs it.
type Configuration struct {
	DataStorageType    StorageType                   `json:"dataStorageType"`
	DataStorageURI     string                        `json:"dataStorageUri"`
	Features           Features                      `json:"features"`
	Warnings           []string                      `json:"warnings"`
	PasswordHash       string                        `json:"-"`
	Users              model.UserRecord              `json:"users"`
	Subscriptions      model.SubscriptionRecord      `json:"subscriptions"`
	SubscriptionCaches model.SubscriptionCacheRecord `json:"subscriptionCaches"`
	SubscriptionTypes  []string                      `json:"subscriptionTypes"`
	Template           string                        `json:"template"`
	SEAPIToken         string                        `json:"seApiToken,omitempty"`

	backend Backend
}

// Set writes one logical field (see the Field* constants). Strings are
// stored verbatim, anything else as JSON.
func (c *Configuration) Set(ctx context.Context, field string, value any) error {
	if c.backend == nil || !c.Features.Writable {
		return ErrReadOnly
	}
	if !isDataField(field) {
		return fmt.Errorf("unknown configuration field %q", field)
	}

	var data string
	switch v := value.(type) {
	case string:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", field, err)
		}
		data = string(b)
	}
	return c.backend.Set(ctx, StorageKey(field), data)
}

type Loader struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// Redis is shared by every Load; nil disables Redis storage.
	Redis             *RedisPool
	SubscriptionTypes []string
	Logger            *slog.Logger
}

func (l *Loader) getenv(key string) string {
	if l.Getenv != nil {
		return l.Getenv(key)
	}
	return os.Getenv(key)
}

func (l *Loader) Load(ctx context.Context) *Configuration {
	cfg := &Configuration{
		DataStorageType:    StorageEnv,
		Warnings:           []string{},
		Users:              model.UserRecord{},
		Subscriptions:      model.SubscriptionRecord{},
		SubscriptionCaches: model.SubscriptionCacheRecord{},
		SubscriptionTypes:  append([]string(nil), l.SubscriptionTypes...),
	}

	password := l.getenv(auth.PasswordEnv)
	if password == "" {
		cfg.warn("[%s] Not set", auth.PasswordEnv)
		password = auth.DefaultPassword
	}
	if password == auth.DefaultPassword {
		cfg.warn("[%s] Default password risk", auth.PasswordEnv)
	}
	cfg.PasswordHash = auth.Hash(password)

	uri := strings.TrimSpace(l.getenv(DataStorageEnv))
	if uri == "" {
		uri = string(StorageEnv)
	}
	cfg.DataStorageURI = redactURI(uri)

	env := envBackend{getenv: l.getenv}
	var backend Backend = env
	switch {
	case uri == string(StorageEnv):
	case strings.HasPrefix(uri, "redis://") || strings.HasPrefix(uri, "rediss://"):
		if rb, err := l.redisBackend(uri); err != nil {
			cfg.warn("[%s] Failed to connect to Redis: %v", DataStorageEnv, err)
		} else {
			backend = rb
		}
	default:
		cfg.warn("[%s] Invalid value: %s", DataStorageEnv, cfg.DataStorageURI)
	}

	values, err := backend.Fetch(ctx, storageKeys())
	if err != nil {
		cfg.warn("[%s] Failed to connect to Redis: %v", DataStorageEnv, err)
		backend = env
		values, _ = env.Fetch(ctx, storageKeys())
	}
	if _, ok := backend.(redisBackend); ok {
		cfg.DataStorageType = StorageRedis
		cfg.Features.Writable = true
	}
	cfg.backend = backend

	cfg.parseFields(values)

	if l.Logger != nil {
		l.Logger.Debug("configuration loaded",
			"storage", cfg.DataStorageType,
			"users", len(cfg.Users),
			"subscriptions", len(cfg.Subscriptions),
			"warnings", cfg.Warnings,
		)
	}
	return cfg
}

func (l *Loader) redisBackend(uri string) (Backend, error) {
	if l.Redis == nil {
		return nil, fmt.Errorf("redis storage is disabled")
	}
	client, err := l.Redis.Client(uri)
	if err != nil {
		return nil, err
	}
	return redisBackend{client: client}, nil
}

func (c *Configuration) parseFields(values map[string]string) {
	if key := StorageKey(FieldUsers); values[key] != "" {
		users, issues, err := model.ParseUserRecord([]byte(values[key]))
		if c.fieldOK(key, issues, err) {
			c.Users = users
		}
	}
	if key := StorageKey(FieldSubscriptions); values[key] != "" {
		subs, issues, err := model.ParseSubscriptionRecord([]byte(values[key]), c.SubscriptionTypes)
		if c.fieldOK(key, issues, err) {
			c.Subscriptions = subs
		}
	}
	if key := StorageKey(FieldSubscriptionCaches); values[key] != "" {
		caches, issues, err := model.ParseSubscriptionCacheRecord([]byte(values[key]))
		if c.fieldOK(key, issues, err) {
			c.SubscriptionCaches = caches
		}
	}
	c.Template = values[StorageKey(FieldTemplate)]
	c.SEAPIToken = strings.TrimSpace(values[StorageKey(FieldSEAPIToken)])
}

func (c *Configuration) fieldOK(key string, issues model.Issues, err error) bool {
	if err != nil {
		c.warn("[%s] Invalid JSON string", key)
		return false
	}
	if len(issues) > 0 {
		c.warn("[%s] %s", key, strings.Join(issues, ", "))
		return false
	}
	return true
}

func (c *Configuration) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// redactURI hides the password of a redis:// URI.
func redactURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
