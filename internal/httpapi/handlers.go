package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/John-Robertt/surge-balancer/internal/auth"
	"github.com/John-Robertt/surge-balancer/internal/model"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

type handler struct {
	opt Options
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteText(w, http.StatusOK, "ok\n")
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, model.AppError{
		Code:    "METHOD_NOT_ALLOWED",
		Message: "Method not allowed",
		Stage:   "validate_request",
	})
}

type loginRequest struct {
	// Password is the SHA-256 hex digest computed by the browser.
	Password *string `json:"password"`
}

func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	if req.Password == nil {
		writeErrorFromErr(w, requestError("password required", nil))
		return
	}
	hash := strings.ToLower(strings.TrimSpace(*req.Password))
	if !h.opt.Auth.Valid(hash) {
		metricsIncLogin(false)
		h.opt.Logger.Warn("login rejected", "remote", r.RemoteAddr)
		writeErrorFromErr(w, errInvalidPassword)
		return
	}
	metricsIncLogin(true)
	http.SetCookie(w, auth.Cookie(hash, isSecure(r)))
	WriteSuccess(w, "", nil)
}

func (h *handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ClearCookie())
	WriteSuccess(w, "", nil)
}

// requireLogin rejects requests without a valid login cookie and expires
// stale cookies, e.g. after the password changed.
func (h *handler) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(auth.CookieName)
		if err != nil || c.Value == "" {
			writeErrorFromErr(w, errLoginFirst)
			return
		}
		if !h.opt.Auth.Valid(c.Value) {
			http.SetCookie(w, auth.ClearCookie())
			writeErrorFromErr(w, errLoginFirst)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, "", h.opt.Config.Load(r.Context()))
}

// decodeJSON reads a size-limited JSON object. Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apiError(http.StatusRequestEntityTooLarge, model.AppError{
				Code:    "BODY_TOO_LARGE",
				Message: "Request body too large",
				Stage:   "validate_request",
			}, err)
		case errors.Is(err, io.EOF):
			return requestError("Request body must be a JSON object", err)
		default:
			return requestError("Invalid JSON body: "+err.Error(), err)
		}
	}
	return nil
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
