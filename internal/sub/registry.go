// Package sub maps subscription types to their body parsers.
package sub

import (
	"fmt"
	"sort"

	"github.com/John-Robertt/surge-balancer/internal/model"
	"github.com/John-Robertt/surge-balancer/internal/sub/ss"
	"github.com/John-Robertt/surge-balancer/internal/sub/ssjson"
)

const (
	TypeShadowsocks     = "shadowsocks_subscribe"
	TypeShadowsocksJSON = "shadowsocks_json_subscribe"
)

type Options struct {
	SourceURL string
	UDPRelay  *bool
}

// Parser turns a fetched subscription body into proxy nodes.
type Parser interface {
	Parse(body string, opt Options) ([]model.Proxy, error)
}

type ParserFunc func(body string, opt Options) ([]model.Proxy, error)

func (f ParserFunc) Parse(body string, opt Options) ([]model.Proxy, error) { return f(body, opt) }

type Registry map[string]Parser

// UnknownTypeError is returned by Registry.Parse for unregistered types.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown subscription type %q", e.Type)
}

// Default returns the registry of all built-in subscription types.
func Default() Registry {
	return Registry{
		TypeShadowsocks: ParserFunc(func(body string, opt Options) ([]model.Proxy, error) {
			return ss.ParseSubscription(opt.SourceURL, body, opt.UDPRelay)
		}),
		TypeShadowsocksJSON: ParserFunc(func(body string, opt Options) ([]model.Proxy, error) {
			return ssjson.ParseSubscription(opt.SourceURL, body, opt.UDPRelay)
		}),
	}
}

// Types returns the registered type names, sorted.
func (r Registry) Types() []string {
	out := make([]string, 0, len(r))
	for t := range r {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r Registry) Parse(typ string, body string, opt Options) ([]model.Proxy, error) {
	p, ok := r[typ]
	if !ok {
		return nil, &UnknownTypeError{Type: typ}
	}
	return p.Parse(body, opt)
}
