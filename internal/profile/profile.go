// Package profile renders the Surge profile handed out to end users: the
// stored template filled with the cached nodes of every enabled subscription.
package profile

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/John-Robertt/surge-balancer/internal/model"
	"github.com/John-Robertt/surge-balancer/internal/store"
	"github.com/John-Robertt/surge-balancer/internal/sub"
	"github.com/John-Robertt/surge-balancer/internal/template"
)

type Request struct {
	Username string
	Passcode string
	// ProfileURL goes into the #!MANAGED-CONFIG line.
	ProfileURL string
}

// Generate checks the user's credentials and renders their profile.
func Generate(cfg *store.Configuration, parsers sub.Registry, req Request) (string, error) {
	user, ok := cfg.Users[strings.TrimSpace(req.Username)]
	if !ok || !user.IsEnabled() || !passcodeMatches(user.Passcode, req.Passcode) {
		return "", newError(http.StatusForbidden, "FORBIDDEN", "Invalid username or passcode", "", nil)
	}
	if strings.TrimSpace(cfg.Template) == "" {
		return "", newError(http.StatusNotFound, "TEMPLATE_EMPTY", "Template not set", "", nil)
	}

	sources, err := cachedSources(cfg, parsers)
	if err != nil {
		return "", err
	}
	return Render(cfg.Template, req.ProfileURL, sources)
}

// passcodeMatches refuses empty passcodes on either side.
func passcodeMatches(stored, given string) bool {
	if stored == "" || given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

// cachedSources parses the cached body of every enabled subscription, in
// index order. Subscriptions that were never checked are skipped.
func cachedSources(cfg *store.Configuration, parsers sub.Registry) ([]Source, error) {
	var out []Source
	for _, name := range cfg.Subscriptions.Ordered() {
		s := cfg.Subscriptions[name]
		if !s.IsEnabled() {
			continue
		}
		cache, ok := cfg.SubscriptionCaches[name]
		if !ok {
			continue
		}
		proxies, err := parsers.Parse(s.Type, cache.Body, sub.Options{SourceURL: s.URL, UDPRelay: s.UDPRelay})
		if err != nil {
			return nil, newError(http.StatusUnprocessableEntity, "SUB_PARSE_ERROR", "cached subscription "+name+" cannot be parsed", "", err)
		}
		out = append(out, Source{Name: name, Proxies: proxies})
	}
	return out, nil
}

// Render fills tmpl with the nodes of sources. Each source with at least one
// node also becomes a select group named after it.
func Render(tmpl string, profileURL string, sources []Source) (string, error) {
	reserved := make(map[string]struct{}, len(sources))
	groupNames := make([]string, len(sources))
	for i, src := range sources {
		name := groupName(src.Name)
		if _, dup := reserved[name]; dup || name == "" {
			continue
		}
		reserved[name] = struct{}{}
		groupNames[i] = name
	}
	sources, err := normalizeSources(sources, reserved)
	if err != nil {
		return "", err
	}

	var proxyLines, groupLines []string
	for i, src := range sources {
		g := model.Group{Name: groupNames[i]}
		for _, p := range src.Proxies {
			line, err := proxyLine(p)
			if err != nil {
				return "", err
			}
			proxyLines = append(proxyLines, line)
			g.Members = append(g.Members, p.Name)
		}
		if g.Name != "" && len(g.Members) > 0 {
			groupLines = append(groupLines, groupLine(g))
		}
	}

	out, err := template.Inject(tmpl, template.Blocks{
		Proxies: strings.Join(proxyLines, "\n"),
		Groups:  strings.Join(groupLines, "\n"),
	})
	if err != nil {
		return "", err
	}
	if profileURL == "" {
		return out, nil
	}
	return template.EnsureManagedConfig(out, profileURL)
}
