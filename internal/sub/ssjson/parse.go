// Package ssjson parses shadowsocks JSON subscriptions, the
// {"configs": [...]} documents exported by shadowsocks GUI clients.
package ssjson

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/John-Robertt/surge-balancer/internal/model"
)

const defaultObfsHost = "www.bing.com"

var (
	obfsModeRe = regexp.MustCompile(`obfs=(\w+)`)
	obfsHostRe = regexp.MustCompile(`obfs-host=(.+)$`)
)

type ParseError struct {
	AppError model.AppError
	Cause    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ParseSubscription reads every entry of the configs array. An entry whose
// plugin is obfs-local gets simple-obfs options; other plugins are dropped.
func ParseSubscription(sourceURL string, content string, udpRelay *bool) ([]model.Proxy, error) {
	content = strings.TrimPrefix(content, "\uFEFF")
	if !gjson.Valid(content) {
		return nil, newParseError(sourceURL, 0, "SUB_PARSE_ERROR", "Invalid ShadowsocksJSONConfig format", "body is not valid JSON")
	}
	configs := gjson.Get(content, "configs")
	if !configs.IsArray() {
		return nil, newParseError(sourceURL, 0, "SUB_PARSE_ERROR", "Invalid ShadowsocksJSONConfig format", `expected an object with a "configs" array`)
	}

	var out []model.Proxy
	var perr error
	i := 0
	configs.ForEach(func(_, item gjson.Result) bool {
		i++
		p, err := parseConfig(sourceURL, i, item)
		if err != nil {
			perr = err
			return false
		}
		if udpRelay != nil {
			v := *udpRelay
			p.UDPRelay = &v
		}
		out = append(out, p)
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return out, nil
}

func parseConfig(sourceURL string, n int, item gjson.Result) (model.Proxy, error) {
	if !item.IsObject() {
		return model.Proxy{}, newParseError(sourceURL, n, "SUB_PARSE_ERROR", fmt.Sprintf("configs[%d] is not an object", n-1), "")
	}
	p := model.Proxy{
		Type:     "ss",
		Name:     strings.TrimSpace(item.Get("remarks").String()),
		Server:   strings.TrimSpace(item.Get("server").String()),
		Cipher:   strings.TrimSpace(item.Get("method").String()),
		Password: item.Get("password").String(),
	}
	if p.Server == "" || p.Cipher == "" || p.Password == "" {
		return model.Proxy{}, newParseError(sourceURL, n, "SUB_PARSE_ERROR", fmt.Sprintf("configs[%d] needs server, method and password", n-1), "")
	}

	port, err := parsePort(item.Get("server_port"))
	if err != nil {
		return model.Proxy{}, newParseError(sourceURL, n, "SUB_PARSE_ERROR", fmt.Sprintf("configs[%d].server_port: %v", n-1, err), "")
	}
	p.Port = port

	if item.Get("plugin").String() == "obfs-local" {
		opts := item.Get("plugin_opts").String()
		if m := obfsModeRe.FindStringSubmatch(opts); m != nil {
			host := defaultObfsHost
			if h := obfsHostRe.FindStringSubmatch(opts); h != nil {
				host = h[1]
			}
			p.PluginName = "obfs-local"
			p.PluginOpts = []model.KV{
				{Key: "obfs", Value: m[1]},
				{Key: "obfs-host", Value: host},
			}
		}
	}
	return p, nil
}

// server_port shows up both as a number and as a string.
func parsePort(r gjson.Result) (int, error) {
	var port int
	switch r.Type {
	case gjson.Number:
		if r.Num < 1 || r.Num > 65535 || r.Num != float64(int(r.Num)) {
			return 0, fmt.Errorf("invalid port: %s", r.Raw)
		}
		port = int(r.Num)
	case gjson.String:
		v, err := strconv.Atoi(strings.TrimSpace(r.Str))
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", r.Str)
		}
		port = v
	default:
		return 0, errors.New("missing")
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("out of range: %d", port)
	}
	return port, nil
}

func newParseError(sourceURL string, n int, code, message, hint string) error {
	return &ParseError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "parse_sub",
			URL:     sourceURL,
			Line:    n,
			Hint:    hint,
		},
	}
}
