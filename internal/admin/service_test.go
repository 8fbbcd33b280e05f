package admin

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/surge-balancer/internal/fetch"
	"github.com/John-Robertt/surge-balancer/internal/model"
	"github.com/John-Robertt/surge-balancer/internal/store"
	"github.com/John-Robertt/surge-balancer/internal/sub"
	"github.com/John-Robertt/surge-balancer/internal/surgeapi"
	"github.com/John-Robertt/surge-balancer/internal/template"
)

type fakeSurge struct {
	users []surgeapi.User
	err   error
	calls int
}

func (f *fakeSurge) Users(_ context.Context, token string) ([]surgeapi.User, error) {
	f.calls++
	return f.users, f.err
}

func newService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	pool := &store.RedisPool{}
	t.Cleanup(func() { _ = pool.Close() })

	env := map[string]string{
		"SB_PASSWORD":    "s3cret",
		"SB_DATASTORAGE": "redis://" + mr.Addr(),
	}
	reg := sub.Default()
	svc := &Service{
		Config: &store.Loader{
			Getenv:            func(k string) string { return env[k] },
			Redis:             pool,
			SubscriptionTypes: reg.Types(),
		},
		Parsers:     reg,
		SurgeAPI:    &fakeSurge{},
		Concurrency: 2,
		Now:         func() time.Time { return time.UnixMilli(1700000000000) },
	}
	return svc, mr
}

func ssBody(n int) string {
	var b []byte
	for i := 0; i < n; i++ {
		b = append(b, "ss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388#n\n"...)
	}
	return base64.StdEncoding.EncodeToString(b)
}

func TestService_ReadOnly(t *testing.T) {
	svc := &Service{Config: &store.Loader{Getenv: func(string) string { return "" }}}
	ctx := context.Background()

	assert.ErrorIs(t, svc.EditUsers(ctx, UserEdits{"a": {Passcode: strp("x")}}), store.ErrReadOnly)
	assert.ErrorIs(t, svc.SetAllSubscriptionsEnabled(ctx, true), store.ErrReadOnly)
	_, err := svc.CheckSubscriptions(ctx, nil)
	assert.ErrorIs(t, err, store.ErrReadOnly)
	assert.ErrorIs(t, svc.EditTemplate(ctx, ""), store.ErrReadOnly)
}

func TestService_EditUsersAndEnableAll(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.EditUsers(ctx, UserEdits{"alice": {Passcode: strp("a")}, "bob": {Passcode: strp("b")}}))
	require.NoError(t, svc.SetAllUsersEnabled(ctx, true))

	got, err := mr.Get("SB_USERS")
	require.NoError(t, err)
	assert.JSONEq(t, `{"alice":{"passcode":"a","enabled":true},"bob":{"passcode":"b","enabled":true}}`, got)

	err = svc.EditUsers(ctx, UserEdits{"ghost": nil})
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusForbidden, ae.Status)

	after, err := mr.Get("SB_USERS")
	require.NoError(t, err)
	assert.Equal(t, got, after, "failed edit must not write")
}

func TestService_EditSubscriptions(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()
	mr.Set("SB_SUBSCRIPTION_CACHES", `{"old": {"body": "x", "updatedAt": 1, "nodeCount": 1}}`)
	mr.Set("SB_SUBSCRIPTIONS", `{"old": {"url": "https://old", "type": "shadowsocks_subscribe", "index": 0}}`)

	require.NoError(t, svc.EditSubscriptions(ctx, SubscriptionEdits{
		"old": nil,
		"hk":  {URL: strp("https://hk"), Type: strp(sub.TypeShadowsocks), Enabled: model.Bool(true)},
	}))

	got, _ := mr.Get("SB_SUBSCRIPTIONS")
	assert.JSONEq(t, `{"hk":{"url":"https://hk","type":"shadowsocks_subscribe","index":0,"updatedAt":1700000000000,"enabled":true}}`, got)
	caches, _ := mr.Get("SB_SUBSCRIPTION_CACHES")
	assert.JSONEq(t, `{}`, caches)
}

func TestService_CheckSubscriptions(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()

	var inflight, maxInflight, hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		n := atomic.AddInt32(&inflight, 1)
		defer atomic.AddInt32(&inflight, -1)
		for {
			m := atomic.LoadInt32(&maxInflight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInflight, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		switch r.URL.Path {
		case "/json":
			_, _ = w.Write([]byte(`{"configs":[{"server":"h","server_port":1,"method":"m","password":"p"}]}`))
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte(ssBody(3)))
		}
	}))
	defer ts.Close()

	mr.Set("SB_SUBSCRIPTIONS", `{
		"a": {"url": "`+ts.URL+`/a", "type": "shadowsocks_subscribe", "index": 0, "enabled": true},
		"b": {"url": "`+ts.URL+`/b", "type": "shadowsocks_subscribe", "index": 1, "enabled": true},
		"c": {"url": "`+ts.URL+`/c", "type": "shadowsocks_subscribe", "index": 2, "enabled": true},
		"d": {"url": "`+ts.URL+`/json", "type": "shadowsocks_json_subscribe", "index": 3, "enabled": true},
		"e": {"url": "`+ts.URL+`/broken", "type": "shadowsocks_subscribe", "index": 4},
		"f": {"url": "`+ts.URL+`/f", "type": "shadowsocks_subscribe", "index": 5, "enabled": true}
	}`)
	mr.Set("SB_SUBSCRIPTION_CACHES", `{"e": {"body": "keep", "updatedAt": 1, "nodeCount": 0}}`)

	results, err := svc.CheckSubscriptions(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []CheckResult{{"a", 3}, {"b", 3}, {"c", 3}, {"d", 1}, {"f", 3}}, results)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInflight), int32(2))

	cfg := svc.Config.Load(ctx)
	assert.Empty(t, cfg.Warnings)
	assert.Equal(t, 1, cfg.SubscriptionCaches["d"].NodeCount)
	assert.Equal(t, int64(1700000000000), cfg.SubscriptionCaches["a"].UpdatedAt)
	assert.Equal(t, "keep", cfg.SubscriptionCaches["e"].Body)

	// Unknown names fail before anything is fetched.
	before := atomic.LoadInt32(&hits)
	_, err = svc.CheckSubscriptions(ctx, []string{"a", "ghost"})
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusForbidden, ae.Status)
	assert.Equal(t, "Subscription ghost doesn't exist", ae.AppError.Message)
	assert.Equal(t, before, atomic.LoadInt32(&hits))

	// One failure fails the batch and writes nothing.
	cachesBefore, _ := mr.Get("SB_SUBSCRIPTION_CACHES")
	_, err = svc.CheckSubscriptions(ctx, []string{"a", "e"})
	var fe *fetch.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusBadGateway, fe.Status)
	cachesAfter, _ := mr.Get("SB_SUBSCRIPTION_CACHES")
	assert.Equal(t, cachesBefore, cachesAfter)
}

func TestService_CheckSubscriptions_Nothing(t *testing.T) {
	svc, _ := newService(t)
	results, err := svc.CheckSubscriptions(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestService_SyncUsers(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()
	fs := &fakeSurge{users: []surgeapi.User{
		{User: "alice", Passcode: "new"},
		{User: "bob", Passcode: "same"},
		{User: "carol", Passcode: "c"},
		{User: " ", Passcode: "skip"},
		{User: "dave", Passcode: ""},
	}}
	svc.SurgeAPI = fs

	_, err := svc.SyncUsers(ctx)
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusForbidden, ae.Status)
	assert.Equal(t, "No Surge Enterprise API token set", ae.AppError.Message)
	assert.Equal(t, 0, fs.calls)

	mr.Set("SB_SE_API_TOKEN", "tok")
	mr.Set("SB_USERS", `{"alice":{"passcode":"old","enabled":true},"bob":{"passcode":"same"}}`)

	res, err := svc.SyncUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Added: 2, Updated: 1}, res)
	assert.Equal(t, "Added 2 users, updated 1 users", res.Message())

	got, _ := mr.Get("SB_USERS")
	assert.JSONEq(t, `{"alice":{"passcode":"new","enabled":true},"bob":{"passcode":"same"},"carol":{"passcode":"c"},"dave":{"passcode":""}}`, got)

	res, err = svc.SyncUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, res)
}

func TestService_SyncUsers_Upstream(t *testing.T) {
	svc, mr := newService(t)
	mr.Set("SB_SE_API_TOKEN", "tok")
	svc.SurgeAPI = &fakeSurge{err: errors.New("dial tcp: connection refused")}

	_, err := svc.SyncUsers(context.Background())
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadGateway, ae.Status)
}

func TestService_Settings(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()

	err := svc.EditTemplate(ctx, "[General]\n")
	var te *template.TemplateError
	require.ErrorAs(t, err, &te)
	assert.False(t, mr.Exists("SB_TEMPLATE"))

	require.NoError(t, svc.EditTemplate(ctx, "[Proxy]\n#@PROXIES@#\n"))
	got, _ := mr.Get("SB_TEMPLATE")
	assert.Equal(t, "[Proxy]\n#@PROXIES@#\n", got)

	require.NoError(t, svc.EditSEAPIToken(ctx, "  tok  "))
	got, _ = mr.Get("SB_SE_API_TOKEN")
	assert.Equal(t, "tok", got)
}

