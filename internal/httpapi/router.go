package httpapi

import "net/http"

// NewMux registers every route. Admin routes sit behind the login cookie;
// /api/profile is authenticated by username and passcode since Surge itself
// fetches it.
func NewMux(opt Options) *http.ServeMux {
	opt = opt.withDefaults()
	h := &handler{opt: opt}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handleIndex)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /metrics", handleMetrics)

	mux.HandleFunc("POST /api/login", h.handleLogin)
	mux.HandleFunc("POST /api/logout", h.handleLogout)
	mux.Handle("GET /api/config", h.requireLogin(http.HandlerFunc(h.handleConfig)))
	mux.Handle("POST /api/user", h.requireLogin(http.HandlerFunc(h.handleUser)))
	mux.Handle("POST /api/subscription", h.requireLogin(http.HandlerFunc(h.handleSubscription)))
	mux.Handle("POST /api/setting", h.requireLogin(http.HandlerFunc(h.handleSetting)))
	mux.HandleFunc("GET /api/profile", h.handleProfile)

	// Method-less patterns catch every other method with a JSON 405.
	for _, path := range []string{
		"/api/login", "/api/logout", "/api/config", "/api/user",
		"/api/subscription", "/api/setting", "/api/profile",
	} {
		mux.HandleFunc(path, handleMethodNotAllowed)
	}
	return mux
}
