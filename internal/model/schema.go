package model

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"slices"
	"sort"
	"strings"
)

// Issues are "path message" strings, one per schema violation.
type Issues []string

func (is *Issues) add(path, format string, args ...any) {
	if path == "" {
		path = "(root)"
	}
	*is = append(*is, path+" "+fmt.Sprintf(format, args...))
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindBool
	kindInt
)

func (k fieldKind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindBool:
		return "boolean"
	default:
		return "integer"
	}
}

type schemaField struct {
	name     string
	kind     fieldKind
	required bool
}

var (
	userSchema = []schemaField{
		{name: "passcode", kind: kindString, required: true},
		{name: "enabled", kind: kindBool},
	}
	subscriptionSchema = []schemaField{
		{name: "url", kind: kindString, required: true},
		{name: "type", kind: kindString, required: true},
		{name: "index", kind: kindInt},
		{name: "updatedAt", kind: kindInt},
		{name: "udpRelay", kind: kindBool},
		{name: "enabled", kind: kindBool},
	}
	subscriptionCacheSchema = []schemaField{
		{name: "body", kind: kindString, required: true},
		{name: "updatedAt", kind: kindInt, required: true},
		{name: "nodeCount", kind: kindInt, required: true},
	}
)

// ParseUserRecord decodes a stored users map. A non-nil error means the input
// is not JSON at all; schema problems are reported as issues and the returned
// record is nil.
func ParseUserRecord(data []byte) (UserRecord, Issues, error) {
	objs, issues, err := decodeRecord(data, userSchema)
	if err != nil || len(issues) > 0 {
		return nil, issues, err
	}
	out := make(UserRecord, len(objs))
	for name, raw := range objs {
		var u User
		if err := json.Unmarshal(raw, &u); err != nil {
			issues.add(name, "%v", err)
			continue
		}
		u.Passcode = strings.TrimSpace(u.Passcode)
		issues = append(issues, ValidateUser(name, u)...)
		out[name] = u
	}
	if len(issues) > 0 {
		return nil, issues, nil
	}
	return out, nil, nil
}

// ParseSubscriptionRecord decodes a stored subscriptions map; types is the
// list of accepted subscription types.
func ParseSubscriptionRecord(data []byte, types []string) (SubscriptionRecord, Issues, error) {
	objs, issues, err := decodeRecord(data, subscriptionSchema)
	if err != nil || len(issues) > 0 {
		return nil, issues, err
	}
	out := make(SubscriptionRecord, len(objs))
	for name, raw := range objs {
		var s Subscription
		if err := json.Unmarshal(raw, &s); err != nil {
			issues.add(name, "%v", err)
			continue
		}
		issues = append(issues, ValidateSubscription(name, s, types)...)
		out[name] = s
	}
	if len(issues) > 0 {
		return nil, issues, nil
	}
	return out, nil, nil
}

func ParseSubscriptionCacheRecord(data []byte) (SubscriptionCacheRecord, Issues, error) {
	objs, issues, err := decodeRecord(data, subscriptionCacheSchema)
	if err != nil || len(issues) > 0 {
		return nil, issues, err
	}
	out := make(SubscriptionCacheRecord, len(objs))
	for name, raw := range objs {
		var c SubscriptionCache
		if err := json.Unmarshal(raw, &c); err != nil {
			issues.add(name, "%v", err)
			continue
		}
		if c.NodeCount < 0 {
			issues.add(name+".nodeCount", "must be greater than or equal to 0")
		}
		out[name] = c
	}
	if len(issues) > 0 {
		return nil, issues, nil
	}
	return out, nil, nil
}

func ValidateUser(name string, u User) Issues {
	var issues Issues
	if strings.TrimSpace(name) == "" {
		issues.add(name, "username must not be empty")
	}
	return issues
}

func ValidateSubscription(name string, s Subscription, types []string) Issues {
	var issues Issues
	if strings.TrimSpace(name) == "" {
		issues.add(name, "name must not be empty")
	}
	if !IsHTTPURL(s.URL) {
		issues.add(name+".url", "invalid url")
	}
	if !slices.Contains(types, s.Type) {
		issues.add(name+".type", "invalid enum value, expected one of %s", strings.Join(types, " | "))
	}
	if s.Index != nil && *s.Index < 0 {
		issues.add(name+".index", "must be greater than or equal to 0")
	}
	return issues
}

func IsHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u == nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// decodeRecord checks the name -> object shape against fields and returns
// the raw objects keyed by trimmed name.
func decodeRecord(data []byte, fields []schemaField) (map[string]json.RawMessage, Issues, error) {
	var top any
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, nil, err
	}
	var issues Issues
	m, ok := top.(map[string]any)
	if !ok {
		issues.add("", "expected object, received %s", jsonTypeName(top))
		return nil, issues, nil
	}

	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]json.RawMessage, len(m))
	for _, rawName := range names {
		name := strings.TrimSpace(rawName)
		if _, dup := out[name]; dup {
			issues.add(name, "duplicate key after trimming")
			continue
		}
		obj, ok := m[rawName].(map[string]any)
		if !ok {
			issues.add(name, "expected object, received %s", jsonTypeName(m[rawName]))
			continue
		}
		checkObject(&issues, name, obj, fields)

		b, err := json.Marshal(obj)
		if err != nil {
			issues.add(name, "%v", err)
			continue
		}
		out[name] = b
	}
	return out, issues, nil
}

func checkObject(issues *Issues, path string, obj map[string]any, fields []schemaField) {
	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		known[f.name] = struct{}{}
		v, ok := obj[f.name]
		if !ok || v == nil {
			if f.required {
				issues.add(path+"."+f.name, "required")
			}
			continue
		}
		if !kindMatches(f.kind, v) {
			issues.add(path+"."+f.name, "expected %s, received %s", f.kind, jsonTypeName(v))
		}
	}

	var unknown []string
	for k := range obj {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, "'"+k+"'")
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		issues.add(path, "unrecognized key(s) in object: %s", strings.Join(unknown, ", "))
	}
}

func kindMatches(k fieldKind, v any) bool {
	switch k {
	case kindString:
		_, ok := v.(string)
		return ok
	case kindBool:
		_, ok := v.(bool)
		return ok
	case kindInt:
		f, ok := v.(float64)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	}
	return false
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
