// Package surgeapi talks to the Surge Enterprise admin API.
package surgeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/John-Robertt/surge-balancer/internal/fetch"
	"github.com/John-Robertt/surge-balancer/internal/model"
)

const DefaultBaseURL = "https://enterprise.nssurge.com/api/admin"

// User is one entry of GET /users.
type User struct {
	ID          string `json:"id"`
	User        string `json:"user"`
	Passcode    string `json:"passcode"`
	Quota       *int64 `json:"quota"`
	DeviceCount int    `json:"deviceCount"`
}

type Client struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Error is an upstream failure; Message prefers the API's own "error" field.
type Error struct {
	AppError model.AppError
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.AppError.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func (c *Client) baseURL() string {
	if c == nil || strings.TrimSpace(c.BaseURL) == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

// Users lists the users of the enterprise account behind token.
func (c *Client) Users(ctx context.Context, token string) ([]User, error) {
	endpoint := c.baseURL() + "/users"
	opt := fetch.Options{Header: http.Header{"x-api-token": []string{token}}}
	if c != nil {
		opt.Timeout = c.Timeout
		opt.Transport = c.Transport
	}

	body, err := fetch.FetchTextWithOptions(ctx, fetch.KindSurgeAPI, endpoint, opt)
	if err != nil {
		return nil, upstreamError(endpoint, err)
	}

	var users []User
	if err := json.Unmarshal([]byte(body), &users); err != nil {
		return nil, &Error{
			AppError: model.AppError{
				Code:    "SURGE_API_BAD_RESPONSE",
				Message: "Surge Enterprise API returned an unexpected response",
				Stage:   "surge_api",
				URL:     endpoint,
			},
			Cause: err,
		}
	}
	return users, nil
}

func upstreamError(endpoint string, err error) error {
	var fe *fetch.FetchError
	if !errors.As(err, &fe) {
		return err
	}
	out := &Error{AppError: fe.AppError, Cause: err}
	out.AppError.URL = endpoint
	if fe.Upstream != 0 {
		msg := gjson.Get(fe.Body, "error").String()
		if strings.TrimSpace(msg) == "" {
			msg = fmt.Sprintf("Request failed with status code %d", fe.Upstream)
		}
		out.AppError.Code = "SURGE_API_ERROR"
		out.AppError.Message = msg
	}
	return out
}
