package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/John-Robertt/surge-balancer/internal/admin"
	"github.com/John-Robertt/surge-balancer/internal/auth"
	"github.com/John-Robertt/surge-balancer/internal/model"
	"github.com/John-Robertt/surge-balancer/internal/store"
	"github.com/John-Robertt/surge-balancer/internal/sub"
	"github.com/John-Robertt/surge-balancer/internal/surgeapi"
)

const testPassword = "s3cret"

type testServer struct {
	handler http.Handler
	env     map[string]string
	cookie  *http.Cookie
	logger  *slog.Logger
}

func (ts *testServer) handlerLogger() *slog.Logger { return ts.logger }

// newTestServer wires the API to an in-process Redis. surgeAPIURL may be
// empty when a test does not sync users.
func newTestServer(t *testing.T, surgeAPIURL string) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	pool := &store.RedisPool{}
	t.Cleanup(func() { _ = pool.Close() })

	ts := &testServer{
		env: map[string]string{
			auth.PasswordEnv:     testPassword,
			store.DataStorageEnv: "redis://" + mr.Addr(),
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	getenv := func(k string) string { return ts.env[k] }
	logger := ts.logger

	reg := sub.Default()
	loader := &store.Loader{Getenv: getenv, Redis: pool, SubscriptionTypes: reg.Types(), Logger: logger}
	ts.handler = NewMux(Options{
		Config:  loader,
		Parsers: reg,
		Auth:    auth.Checker{Getenv: getenv},
		Admin: &admin.Service{
			Config:   loader,
			Parsers:  reg,
			SurgeAPI: &surgeapi.Client{BaseURL: surgeAPIURL},
			Logger:   logger,
		},
		Logger: logger,
	})
	ts.cookie = &http.Cookie{Name: auth.CookieName, Value: auth.Hash(testPassword)}
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal json: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// post sends an authenticated POST and fails the test on non-200.
func (ts *testServer) post(t *testing.T, path string, body any) model.Response {
	t.Helper()
	rr := ts.do(t, http.MethodPost, path, body, ts.cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("POST %s status=%d body=%s", path, rr.Code, rr.Body.String())
	}
	var resp model.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nbody=%q", err, rr.Body.String())
	}
	if !resp.Success {
		t.Fatalf("POST %s success=false body=%s", path, rr.Body.String())
	}
	return resp
}

func (ts *testServer) config(t *testing.T) store.Configuration {
	t.Helper()
	rr := ts.do(t, http.MethodGet, "/api/config", nil, ts.cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/config status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Success bool                `json:"success"`
		Data    store.Configuration `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal config: %v\nbody=%q", err, rr.Body.String())
	}
	return resp.Data
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error response: %v\nbody=%q", err, rr.Body.String())
	}
	if resp.Success {
		t.Fatalf("error response has success=true: %s", rr.Body.String())
	}
	return resp
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, message string) model.ErrorResponse {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status=%d, want %d body=%s", rr.Code, status, rr.Body.String())
	}
	resp := decodeError(t, rr)
	if message != "" && resp.Message != message {
		t.Fatalf("message=%q, want %q", resp.Message, message)
	}
	return resp
}
