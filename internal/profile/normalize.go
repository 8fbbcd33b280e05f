package profile

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/John-Robertt/surge-balancer/internal/model"
)

// Source is the node list of one subscription, in subscription order.
type Source struct {
	Name    string
	Proxies []model.Proxy
}

// normalizeSources cleans every node, drops duplicates across all sources
// (first occurrence wins) and makes node names unique. Names listed in
// reserved are never handed out to nodes.
func normalizeSources(in []Source, reserved map[string]struct{}) ([]Source, error) {
	seen := make(map[string]struct{})
	used := make(map[string]struct{}, len(reserved))
	for name := range reserved {
		used[name] = struct{}{}
	}

	out := make([]Source, 0, len(in))
	for _, src := range in {
		proxies := make([]model.Proxy, 0, len(src.Proxies))
		for _, p := range src.Proxies {
			p, err := normalizeProxy(p)
			if err != nil {
				return nil, newError(http.StatusUnprocessableEntity, "SUB_PARSE_ERROR", fmt.Sprintf("subscription %s has an invalid node", src.Name), p.Name, err)
			}
			key := dedupKey(p)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			p.Name = uniqueName(p, used)
			used[p.Name] = struct{}{}
			proxies = append(proxies, p)
		}
		out = append(out, Source{Name: src.Name, Proxies: proxies})
	}
	return out, nil
}

func uniqueName(p model.Proxy, used map[string]struct{}) string {
	base := p.Name
	if base == "" {
		base = p.Server + ":" + strconv.Itoa(p.Port)
	}
	// Surge proxy lines are "name = ...".
	base = strings.ReplaceAll(base, "=", "-")
	base = strings.ReplaceAll(base, "\"", "'")

	if _, taken := used[base]; !taken && base != "DIRECT" && base != "REJECT" {
		return base
	}
	for n := 2; ; n++ {
		try := base + "-" + strconv.Itoa(n)
		if _, taken := used[try]; !taken {
			return try
		}
	}
}

func normalizeProxy(p model.Proxy) (model.Proxy, error) {
	if p.Type != "ss" {
		return p, errors.New("only ss nodes are supported")
	}

	p.Name = strings.TrimSpace(p.Name)
	if strings.ContainsAny(p.Name, "\r\n\x00") {
		return p, errors.New("node name contains control characters")
	}
	p.Server = strings.ToLower(strings.TrimSpace(p.Server))
	if p.Server == "" {
		return p, errors.New("empty server")
	}
	if p.Port < 1 || p.Port > 65535 {
		return p, errors.New("port out of range")
	}
	p.Cipher = strings.ToLower(strings.TrimSpace(p.Cipher))
	if p.Cipher == "" {
		return p, errors.New("empty cipher")
	}
	p.Password = strings.TrimSpace(p.Password)
	if p.Password == "" {
		return p, errors.New("empty password")
	}

	p.PluginName = strings.TrimSpace(p.PluginName)
	if len(p.PluginOpts) > 0 {
		opts := make([]model.KV, 0, len(p.PluginOpts))
		for _, kv := range p.PluginOpts {
			opts = append(opts, model.KV{Key: strings.TrimSpace(kv.Key), Value: strings.TrimSpace(kv.Value)})
		}
		p.PluginOpts = opts
	}
	return p, nil
}

// dedupKey identifies a node by everything but its name.
func dedupKey(p model.Proxy) string {
	var b strings.Builder
	b.WriteString(p.Type)
	b.WriteByte('\n')
	b.WriteString(p.Server)
	b.WriteByte('\n')
	b.WriteString(strconv.Itoa(p.Port))
	b.WriteByte('\n')
	b.WriteString(p.Cipher)
	b.WriteByte('\n')
	b.WriteString(p.Password)
	b.WriteByte('\n')
	b.WriteString(p.PluginName)
	b.WriteByte('\n')
	for _, kv := range p.PluginOpts {
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(kv.Value)
		b.WriteByte(';')
	}
	return b.String()
}
