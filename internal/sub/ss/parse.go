package ss

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/surge-balancer/internal/model"
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

// ParseSubscription decodes a shadowsocks subscription body: a base64 encoded
// (or already decoded) newline separated list of ss:// URIs. Lines that are
// not ss:// URIs are skipped; a malformed ss:// line fails the whole body.
//
// udpRelay, when set, is copied onto every returned node.
func ParseSubscription(sourceURL string, content string, udpRelay *bool) ([]model.Proxy, error) {
	s := strings.TrimSpace(stripUTF8BOM(content))
	if s == "" {
		return nil, nil
	}

	if !strings.Contains(s, "ss://") {
		decoded, err := decodeSubscriptionBase64(s)
		if err != nil {
			return nil, newParseError(sourceURL, 0, truncateSnippet(s, 200), "SUB_BASE64_DECODE_ERROR", "subscription is not valid base64", "", err)
		}
		s = strings.TrimSpace(stripUTF8BOM(decoded))
	}

	lines := strings.Split(s, "\n")
	out := make([]model.Proxy, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "ss://") {
			continue
		}
		p, err := ParseURI(sourceURL, i+1, line)
		if err != nil {
			return nil, err
		}
		if udpRelay != nil {
			v := *udpRelay
			p.UDPRelay = &v
		}
		out = append(out, p)
	}
	return out, nil
}

// ParseURI parses one SIP002 or legacy ss:// URI.
func ParseURI(sourceURL string, lineNo int, s string) (model.Proxy, error) {
	withoutFrag, frag, hasFrag := strings.Cut(s, "#")
	name := ""
	if hasFrag {
		decoded, err := url.PathUnescape(frag)
		if err != nil {
			return model.Proxy{}, newParseError(sourceURL, lineNo, truncateSnippet(s, 200), "SUB_PARSE_ERROR", "node name is not valid percent-encoding", "", err)
		}
		name = strings.TrimSpace(decoded)
		if strings.ContainsAny(name, "\r\n\x00") {
			return model.Proxy{}, newParseError(sourceURL, lineNo, truncateSnippet(s, 200), "SUB_PARSE_ERROR", "node name contains control characters", "forbidden: \\r \\n \\0", nil)
		}
	}

	withoutQuery, query, _ := strings.Cut(withoutFrag, "?")
	pluginName, pluginOpts, err := parsePlugin(sourceURL, lineNo, query, s)
	if err != nil {
		return model.Proxy{}, err
	}

	rest := strings.TrimPrefix(withoutQuery, "ss://")
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		return model.Proxy{}, newParseError(sourceURL, lineNo, truncateSnippet(s, 200), "SUB_PARSE_ERROR", "missing content after ss://", "", nil)
	}

	p := model.Proxy{
		Type:       "ss",
		Name:       name,
		PluginName: pluginName,
		PluginOpts: pluginOpts,
	}

	// SIP002: <b64(method:password)>@<host>:<port>
	if userB64, hostPort, ok := strings.Cut(rest, "@"); ok {
		if userB64 == "" || hostPort == "" {
			return model.Proxy{}, newParseError(sourceURL, lineNo, truncateSnippet(s, 200), "SUB_PARSE_ERROR", "malformed ss uri", "", nil)
		}
		p.Cipher, p.Password, err = decodeMethodPassword(userB64)
		if err != nil {
			return model.Proxy{}, newParseError(sourceURL, lineNo, truncateSnippet(s, 200), "SUB_PARSE_ERROR", "invalid ss userinfo", "", err)
		}
		p.Server, p.Port, err = parseHostPort(hostPort)
		if err != nil {
			return model.Proxy{}, newParseError(sourceURL, lineNo, truncateSnippet(s, 200), "SUB_PARSE_ERROR", "invalid server address or port", "", err)
		}
		return p, nil
	}

	// Legacy: ss://<b64(method:password@host:port)>
	decoded, err := decodeB64(rest)
	if err != nil {
		return model.Proxy{}, newParseError(sourceURL, lineNo, truncateSnippet(s, 200), "SUB_PARSE_ERROR", "ss uri is not valid base64", "", err)
	}
	at := strings.LastIndex(decoded, "@")
	if at < 0 {
		return model.Proxy{}, newParseError(sourceURL, lineNo, truncateSnippet(s, 200), "SUB_PARSE_ERROR", "decoded ss uri has no '@'", "", nil)
	}
	p.Cipher, p.Password, err = splitMethodPassword(decoded[:at])
	if err != nil {
		return model.Proxy{}, newParseError(sourceURL, lineNo, truncateSnippet(s, 200), "SUB_PARSE_ERROR", "invalid cipher or password", "", err)
	}
	p.Server, p.Port, err = parseHostPort(decoded[at+1:])
	if err != nil {
		return model.Proxy{}, newParseError(sourceURL, lineNo, truncateSnippet(s, 200), "SUB_PARSE_ERROR", "invalid server address or port", "", err)
	}
	return p, nil
}

// parsePlugin only looks at the "plugin" query parameter; providers append
// all sorts of other parameters which are ignored.
//
// net/url.ParseQuery rejects raw semicolons, which SIP002 plugin values use,
// so the query is split by hand.
func parsePlugin(sourceURL string, lineNo int, query string, fullLine string) (string, []model.KV, error) {
	var value string
	found := false
	for _, part := range strings.Split(query, "&") {
		k, v, _ := strings.Cut(part, "=")
		if k != "plugin" {
			continue
		}
		dv, err := url.PathUnescape(v)
		if err != nil {
			return "", nil, newParseError(sourceURL, lineNo, truncateSnippet(fullLine, 200), "SUB_PARSE_ERROR", "plugin parameter is not valid percent-encoding", "", err)
		}
		value, found = dv, true
	}
	if !found || strings.TrimSpace(value) == "" {
		return "", nil, nil
	}

	segs := strings.Split(value, ";")
	name := strings.TrimSpace(segs[0])
	if name == "" {
		return "", nil, newParseError(sourceURL, lineNo, truncateSnippet(fullLine, 200), "SUB_PARSE_ERROR", "plugin name must not be empty", "", nil)
	}
	opts := make([]model.KV, 0, len(segs)-1)
	for _, seg := range segs[1:] {
		if seg == "" {
			continue
		}
		k, v, _ := strings.Cut(seg, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			return "", nil, newParseError(sourceURL, lineNo, truncateSnippet(fullLine, 200), "SUB_PARSE_ERROR", "plugin option key must not be empty", "", nil)
		}
		opts = append(opts, model.KV{Key: k, Value: v})
	}
	return name, opts, nil
}

func parseHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return "", 0, err
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "", 0, errors.New("empty host")
	}
	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil {
		return "", 0, err
	}
	if port < 1 || port > 65535 {
		return "", 0, errors.New("port out of range")
	}
	return host, port, nil
}

func decodeMethodPassword(userB64 string) (string, string, error) {
	decoded, err := url.PathUnescape(userB64)
	if err != nil {
		return "", "", err
	}
	// SIP002 allows plain "method:password" for AEAD-2022 ciphers.
	if !strings.Contains(decoded, ":") {
		decoded, err = decodeB64(decoded)
		if err != nil {
			return "", "", err
		}
	}
	return splitMethodPassword(decoded)
}

func splitMethodPassword(s string) (string, string, error) {
	method, password, ok := strings.Cut(s, ":")
	method = strings.TrimSpace(method)
	password = strings.TrimSpace(password)
	if !ok || method == "" || password == "" {
		return "", "", errors.New("expected method:password")
	}
	if strings.ContainsAny(method, "\r\n\x00") || strings.ContainsAny(password, "\r\n\x00") {
		return "", "", errors.New("control chars in method/password")
	}
	return method, password, nil
}

func decodeSubscriptionBase64(s string) (string, error) {
	return decodeB64(removeSpaceTabCRLF(s))
}

func decodeB64(s string) (string, error) {
	// Providers mix padded, unpadded and URL-safe alphabets.
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err != nil {
			lastErr = err
			continue
		}
		if !utf8.Valid(b) {
			return "", errors.New("decoded content is not valid utf-8")
		}
		return string(b), nil
	}
	return "", lastErr
}

func removeSpaceTabCRLF(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func stripUTF8BOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}

func truncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func newParseError(sourceURL string, lineNo int, snippet string, code string, message string, hint string, cause error) error {
	return &ParseError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "parse_sub",
			URL:     sourceURL,
			Line:    lineNo,
			Snippet: snippet,
			Hint:    hint,
		},
		Cause: cause,
	}
}
