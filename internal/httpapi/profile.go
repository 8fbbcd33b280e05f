package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/surge-balancer/internal/model"
	"github.com/John-Robertt/surge-balancer/internal/profile"
)

func (h *handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	username := strings.TrimSpace(q.Get("username"))
	passcode := q.Get("passcode")

	profileURL, err := managedConfigURL(r, h.opt.PublicBaseURL, username, passcode)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	cfg := h.opt.Config.Load(r.Context())
	text, err := profile.Generate(cfg, h.opt.Parsers, profile.Request{
		Username:   username,
		Passcode:   passcode,
		ProfileURL: profileURL,
	})
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Disposition", contentDispositionAttachment(profileFileName(username)))
	WriteText(w, http.StatusOK, text)
}

// managedConfigURL is the URL Surge re-fetches the profile from. The query
// is serialized in a fixed order so the line is stable across requests.
func managedConfigURL(r *http.Request, publicBaseURL, username, passcode string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")
	if base == "" {
		base = deriveRequestBaseURL(r)
	}

	u, err := url.Parse(base + "/api/profile")
	if err != nil || u == nil || !u.IsAbs() {
		return "", apiError(http.StatusInternalServerError, model.AppError{
			Code:    "INVALID_PUBLIC_BASE_URL",
			Message: "public_base_url is not a valid absolute URL",
			Stage:   "render_profile",
			Snippet: base,
		}, err)
	}
	u.RawQuery = "username=" + pctEncode(username) + "&passcode=" + pctEncode(passcode)
	u.Fragment = ""
	return u.String(), nil
}

func deriveRequestBaseURL(r *http.Request) string {
	scheme := "http"
	if isSecure(r) {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = "127.0.0.1:3000"
	}
	return scheme + "://" + host
}

func pctEncode(s string) string {
	// QueryEscape uses '+' for spaces; %20 keeps the URL unambiguous.
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
