package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/surge-balancer/internal/model"
)

var testTypes = []string{"shadowsocks_json_subscribe", "shadowsocks_subscribe"}

func strp(s string) *string { return &s }
func intp(v int) *int       { return &v }

func TestApplyUserEdits(t *testing.T) {
	users := model.UserRecord{
		"alice": {Passcode: "a", Enabled: model.Bool(true)},
		"bob":   {Passcode: "b"},
	}
	out, err := ApplyUserEdits(users, UserEdits{
		" carol ": {Passcode: strp(" c ")},
		"alice":   {Enabled: model.Bool(false)},
		"bob":     nil,
	})
	require.NoError(t, err)

	assert.Equal(t, model.UserRecord{
		"alice": {Passcode: "a", Enabled: model.Bool(false)},
		"carol": {Passcode: "c"},
	}, out)
	// Input untouched.
	assert.True(t, users["alice"].IsEnabled())
	assert.Contains(t, users, "bob")
}

func TestApplyUserEdits_Errors(t *testing.T) {
	users := model.UserRecord{"alice": {Passcode: "a"}}

	_, err := ApplyUserEdits(users, UserEdits{"ghost": nil})
	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusForbidden, ae.Status)
	assert.Equal(t, "User ghost doesn't exist", ae.AppError.Message)

	_, err = ApplyUserEdits(users, UserEdits{"dave": {Enabled: model.Bool(true)}})
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Equal(t, "dave.passcode required", ae.AppError.Message)

	_, err = ApplyUserEdits(users, UserEdits{"  ": {Passcode: strp("x")}})
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusBadRequest, ae.Status)
}

func TestApplyUserEdits_EmptyPasscode(t *testing.T) {
	users := model.UserRecord{"alice": {Passcode: "a"}}

	out, err := ApplyUserEdits(users, UserEdits{"alice": {Passcode: strp(" ")}, "bob": {Passcode: strp("")}})
	require.NoError(t, err)
	assert.Equal(t, model.UserRecord{"alice": {Passcode: ""}, "bob": {Passcode: ""}}, out)
}

func TestApplyUserEdits_Idempotent(t *testing.T) {
	users := model.UserRecord{"alice": {Passcode: "a"}}
	edits := UserEdits{"alice": {Passcode: strp("a2"), Enabled: model.Bool(true)}, "bob": {Passcode: strp("b")}}

	once, err := ApplyUserEdits(users, edits)
	require.NoError(t, err)
	twice, err := ApplyUserEdits(once, edits)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestUserEdits_AllowList(t *testing.T) {
	var edits UserEdits
	require.NoError(t, json.Unmarshal([]byte(`{"eve": {"passcode": "e", "admin": true, "password": "x", "enabled": true}}`), &edits))

	out, err := ApplyUserEdits(model.UserRecord{}, edits)
	require.NoError(t, err)

	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"eve": {"passcode": "e", "enabled": true}}`, string(b))
}

func TestApplySubscriptionEdits(t *testing.T) {
	subs := model.SubscriptionRecord{
		"a": {URL: "https://a", Type: "shadowsocks_subscribe", Index: intp(0)},
		"b": {URL: "https://b", Type: "shadowsocks_subscribe", Index: intp(1)},
		"c": {URL: "https://c", Type: "shadowsocks_subscribe", Index: intp(2)},
	}
	caches := model.SubscriptionCacheRecord{
		"a": {Body: "x", NodeCount: 1},
		"b": {Body: "y", NodeCount: 1},
		"c": {Body: "z", NodeCount: 1},
	}

	out, outCaches, err := ApplySubscriptionEdits(subs, caches, SubscriptionEdits{
		"a": nil,
		"b": {URL: strp("https://b2")},
		"c": {Enabled: model.Bool(true)},
		"d": {URL: strp("https://d"), Type: strp("shadowsocks_json_subscribe"), Index: intp(0)},
	}, testTypes, 1000)
	require.NoError(t, err)

	assert.NotContains(t, out, "a")
	assert.NotContains(t, outCaches, "a")
	assert.NotContains(t, outCaches, "b", "url change drops the stale cache")
	assert.Contains(t, outCaches, "c")

	assert.Equal(t, 0, *out["d"].Index)
	assert.Equal(t, 1, *out["b"].Index)
	assert.Equal(t, 2, *out["c"].Index)
	for _, name := range []string{"b", "c", "d"} {
		require.NotNil(t, out[name].UpdatedAt, name)
		assert.Equal(t, int64(1000), *out[name].UpdatedAt, name)
	}
}

func TestApplySubscriptionEdits_Errors(t *testing.T) {
	subs := model.SubscriptionRecord{"a": {URL: "https://a", Type: "shadowsocks_subscribe", Index: intp(0)}}
	cases := []struct {
		name   string
		edits  SubscriptionEdits
		status int
		msg    string
	}{
		{"missing", SubscriptionEdits{"ghost": nil}, http.StatusForbidden, "Subscription ghost doesn't exist"},
		{"bad type", SubscriptionEdits{"a": {Type: strp("clash")}}, http.StatusBadRequest, "a.type invalid enum value, expected one of shadowsocks_json_subscribe | shadowsocks_subscribe"},
		{"bad url", SubscriptionEdits{"n": {URL: strp("nope"), Type: strp("shadowsocks_subscribe")}}, http.StatusBadRequest, "n.url invalid url"},
		{"negative index", SubscriptionEdits{"a": {Index: intp(-1)}}, http.StatusBadRequest, "a.index must be greater than or equal to 0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ApplySubscriptionEdits(subs, nil, tc.edits, testTypes, 1)
			var ae *Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tc.status, ae.Status)
			assert.Equal(t, tc.msg, ae.AppError.Message)
		})
	}
}

func TestApplySubscriptionEdits_Idempotent(t *testing.T) {
	subs := model.SubscriptionRecord{
		"a": {URL: "https://a", Type: "shadowsocks_subscribe", Index: intp(0), UpdatedAt: ptr64(1)},
		"b": {URL: "https://b", Type: "shadowsocks_subscribe", Index: intp(1), UpdatedAt: ptr64(1)},
		"c": {URL: "https://c", Type: "shadowsocks_subscribe", Index: intp(2), UpdatedAt: ptr64(1)},
	}
	edits := SubscriptionEdits{
		"c": {Index: intp(0), Enabled: model.Bool(true)},
		"e": {URL: strp("https://e"), Type: strp("shadowsocks_subscribe")},
		"b": {Index: intp(99)},
	}

	once, onceCaches, err := ApplySubscriptionEdits(subs, model.SubscriptionCacheRecord{}, edits, testTypes, 10)
	require.NoError(t, err)
	twice, twiceCaches, err := ApplySubscriptionEdits(once, onceCaches, edits, testTypes, 20)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, onceCaches, twiceCaches)
	assert.Equal(t, []string{"c", "a", "e", "b"}, once.Ordered())
}

func TestApplySubscriptionEdits_UnchangedKeepsUpdatedAt(t *testing.T) {
	subs := model.SubscriptionRecord{"a": {URL: "https://a", Type: "shadowsocks_subscribe", Index: intp(0), UpdatedAt: ptr64(5), Enabled: model.Bool(true)}}
	out, _, err := ApplySubscriptionEdits(subs, nil, SubscriptionEdits{"a": {URL: strp("https://a"), Enabled: model.Bool(true), Index: intp(0)}}, testTypes, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(5), *out["a"].UpdatedAt)
}

func TestSubscriptionEdits_AllowList(t *testing.T) {
	var edits SubscriptionEdits
	require.NoError(t, json.Unmarshal([]byte(`{"s": {"url": "https://s", "type": "shadowsocks_subscribe", "updatedAt": 1, "nodeCount": 7, "body": "x"}}`), &edits))

	out, caches, err := ApplySubscriptionEdits(nil, nil, edits, testTypes, 42)
	require.NoError(t, err)
	assert.Empty(t, caches)
	assert.Equal(t, int64(42), *out["s"].UpdatedAt)

	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"s": {"url": "https://s", "type": "shadowsocks_subscribe", "index": 0, "updatedAt": 42}}`, string(b))
}

func TestReindex_TieBreak(t *testing.T) {
	subs := model.SubscriptionRecord{
		"old":   {Index: intp(1), UpdatedAt: ptr64(1)},
		"new":   {Index: intp(1), UpdatedAt: ptr64(2)},
		"first": {Index: intp(0)},
		"none":  {},
		"alpha": {},
	}
	Reindex(subs, nil)
	assert.Equal(t, []string{"first", "new", "old", "alpha", "none"}, subs.Ordered())
}

// Random edit sequences always leave a dense, duplicate-free index.
func TestReindex_TotalOrder(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	subs := model.SubscriptionRecord{}
	caches := model.SubscriptionCacheRecord{}

	for step := 0; step < 300; step++ {
		edits := SubscriptionEdits{}
		for k := 0; k < 1+r.Intn(4); k++ {
			name := fmt.Sprintf("s%d", r.Intn(12))
			_, exists := subs[name]
			switch op := r.Intn(4); {
			case op == 0 && exists:
				edits[name] = nil
			case op == 1:
				edits[name] = &SubscriptionPatch{URL: strp("https://" + name), Type: strp("shadowsocks_subscribe"), Index: intp(r.Intn(15))}
			default:
				edits[name] = &SubscriptionPatch{URL: strp("https://" + name), Type: strp("shadowsocks_subscribe"), Enabled: model.Bool(r.Intn(2) == 0)}
			}
		}
		next, nextCaches, err := ApplySubscriptionEdits(subs, caches, edits, testTypes, int64(step))
		require.NoError(t, err)
		subs, caches = next, nextCaches

		seen := make([]bool, len(subs))
		for name, s := range subs {
			require.NotNil(t, s.Index, name)
			i := *s.Index
			require.True(t, i >= 0 && i < len(subs), "step %d: %s index %d out of range", step, name, i)
			require.False(t, seen[i], "step %d: duplicate index %d", step, i)
			seen[i] = true
		}
	}
}

func ptr64(v int64) *int64 { return &v }
