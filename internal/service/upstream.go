package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultUpstreamTimeout = 20 * time.Second
	defaultMediaTimeout    = 10 * time.Minute
)

type upstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *upstreamResponse) decode(op string, out any) error {
	if out == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		slog.Info(err.Error())
		return newError(ErrUpstreamAPI, "%s: malformed response: %s", op, truncateBody(r.Body))
	}
	return nil
}

// upstream runs platform calls under a per-call timeout. A timed out call is
// retried once when retry is set.
type upstream struct {
	client  *http.Client
	timeout time.Duration
}

type requestFunc func(ctx context.Context) (*http.Request, error)

func (u *upstream) do(ctx context.Context, client *http.Client, op string, retry bool, newReq requestFunc) (*upstreamResponse, error) {
	if client == nil {
		client = u.client
	}

	attempts := 1
	if retry {
		attempts = 2
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var resp *upstreamResponse
		resp, err = u.once(ctx, client, newReq)
		if err == nil {
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				slog.Error("upstream call failed", "op", op, "status", resp.StatusCode)
				return resp, newError(ErrUpstreamAPI, "%s: status %d: %s", op, resp.StatusCode, truncateBody(resp.Body))
			}
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		if !isTimeout(err) {
			slog.Info(err.Error())
			return nil, &Error{Kind: ErrUpstreamAPI, Message: op, Err: err}
		}
		slog.Info("upstream call timed out", "op", op, "attempt", attempt)
	}

	return nil, newError(ErrUpstreamTimeout, "%s: timed out after %s", op, u.timeout)
}

func (u *upstream) once(ctx context.Context, client *http.Client, newReq requestFunc) (*upstreamResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	req, err := newReq(callCtx)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &upstreamResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// doJSON performs the call and decodes a 2xx body into out.
func (u *upstream) doJSON(ctx context.Context, client *http.Client, op string, retry bool, newReq requestFunc, out any) (*upstreamResponse, error) {
	resp, err := u.do(ctx, client, op, retry, newReq)
	if err != nil {
		return resp, err
	}
	return resp, resp.decode(op, out)
}

// withTimeout bounds calls made through SDK clients that do not go through do.
func (u *upstream) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, u.timeout)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncateBody(body []byte) string {
	const limit = 2048
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

func getRequest(rawURL string) requestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	}
}

func formRequest(rawURL string, values url.Values) requestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(values.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}
}

func jsonRequest(method, rawURL string, payload any) requestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		return req, nil
	}
}

func withHeader(next requestFunc, key, value string) requestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := next(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set(key, value)
		return req, nil
	}
}
