// Package fetch performs bounded HTTP GETs against subscription providers
// and the Surge Enterprise API, classifying failures into FetchErrors.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/John-Robertt/surge-balancer/internal/model"
)

const userAgent = "surge-balancer"

type Kind int

const (
	KindSubscription Kind = iota
	KindSurgeAPI
)

func (k Kind) stage() string {
	switch k {
	case KindSubscription:
		return "fetch_sub"
	case KindSurgeAPI:
		return "surge_api"
	default:
		return "fetch"
	}
}

func (k Kind) defaultMaxBytes() int64 {
	switch k {
	case KindSubscription:
		return 5 * 1024 * 1024
	case KindSurgeAPI:
		return 2 * 1024 * 1024
	default:
		return 1 * 1024 * 1024
	}
}

type Options struct {
	Timeout      time.Duration // default 15s
	MaxBytes     int64         // default per kind
	MaxRedirects int           // default 5
	Header       http.Header
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

type FetchError struct {
	Status   int
	AppError model.AppError
	// Upstream is the upstream status code for non-2xx replies, else 0.
	Upstream int
	// Body holds at most 4 KiB of a non-2xx reply.
	Body  string
	Cause error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

var (
	errTooManyRedirects   = errors.New("too many redirects")
	errRedirectBadScheme  = errors.New("redirect target scheme is not http/https")
	errInvalidURLOrScheme = errors.New("invalid url or scheme")
)

const errorBodyLimit = 4 * 1024

func FetchText(ctx context.Context, kind Kind, rawURL string) (string, error) {
	return FetchTextWithOptions(ctx, kind, rawURL, Options{})
}

func FetchTextWithOptions(ctx context.Context, kind Kind, rawURL string, opt Options) (string, error) {
	stage := kind.stage()
	fail := func(status int, code, message string, cause error) *FetchError {
		return &FetchError{
			Status: status,
			AppError: model.AppError{
				Code:    code,
				Message: message,
				Stage:   stage,
				URL:     rawURL,
			},
			Cause: cause,
		}
	}

	timeout := opt.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	maxRedirects := opt.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = 5
	}
	maxBytes := opt.MaxBytes
	if maxBytes == 0 {
		maxBytes = kind.defaultMaxBytes()
	}
	if maxBytes <= 0 {
		return "", fail(http.StatusBadRequest, "INVALID_ARGUMENT", "response size limit must be positive", nil)
	}

	u, err := url.Parse(rawURL)
	if err != nil || u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fail(http.StatusBadRequest, "INVALID_ARGUMENT", "only http/https URLs are allowed", errors.Join(errInvalidURLOrScheme, err))
	}

	transport := opt.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// len(via) is the number of redirects followed so far plus one.
			if len(via) > maxRedirects {
				return errTooManyRedirects
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return errRedirectBadScheme
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fail(http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request URL", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, vs := range opt.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}

		switch {
		case errors.Is(err, errTooManyRedirects):
			return "", fail(http.StatusBadGateway, "FETCH_FAILED", fmt.Sprintf("too many redirects (>%d)", maxRedirects), err)
		case errors.Is(err, errRedirectBadScheme):
			return "", fail(http.StatusBadRequest, "INVALID_ARGUMENT", "redirect target must be http/https", err)
		case isTimeout(err):
			return "", fail(http.StatusGatewayTimeout, "FETCH_TIMEOUT", "upstream request timed out", err)
		}
		return "", fail(http.StatusBadGateway, "FETCH_FAILED", "upstream request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		fe := fail(http.StatusBadGateway, "FETCH_FAILED", fmt.Sprintf("upstream returned status %d", resp.StatusCode), nil)
		fe.Upstream = resp.StatusCode
		fe.Body = string(b)
		return "", fe
	}

	// Read at most maxBytes+1 to detect overflow deterministically.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		if isTimeout(err) {
			return "", fail(http.StatusGatewayTimeout, "FETCH_TIMEOUT", "upstream request timed out", err)
		}
		return "", fail(http.StatusBadGateway, "FETCH_FAILED", "reading upstream response failed", err)
	}
	if int64(len(body)) > maxBytes {
		return "", fail(http.StatusUnprocessableEntity, "TOO_LARGE", fmt.Sprintf("upstream response too large (>%d bytes)", maxBytes), nil)
	}
	if !utf8.Valid(body) {
		return "", fail(http.StatusUnprocessableEntity, "FETCH_INVALID_UTF8", "upstream response is not valid UTF-8", nil)
	}

	return string(body), nil
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
