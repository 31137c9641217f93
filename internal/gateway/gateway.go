// Package gateway is the single HTTP entry point to the Koursa REST API. It attaches the stored
// access token, classifies failures into apperror kinds and clears stale credentials on 401.
// It never refreshes or retries; that policy belongs to the session manager.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"koursa/client/internal/apperror"
	"koursa/client/internal/storage"
)

const (
	instrumentationName = "koursa/client/gateway"
	// maxErrorBody caps how much of an error response is read for classification.
	maxErrorBody = 64 << 10
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends JSON requests to the Koursa API.
type Client struct {
	baseURL  string
	http     Doer
	store    storage.Store
	tracer   trace.Tracer
	requests metric.Int64Counter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client (used by tests and the dev backend harness).
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// New returns a Client for baseURL (e.g. http://10.0.2.2:8000/api). timeout bounds each request.
// The access token is read from store on every call; the client holds no token itself.
func New(baseURL string, timeout time.Duration, store storage.Store, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		store:   store,
		tracer:  otel.Tracer(instrumentationName),
	}
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"koursa.gateway.requests",
		metric.WithDescription("API requests by method and status class"),
	)
	if err != nil {
		log.Printf("gateway: request counter disabled: %v", err)
	}
	c.requests = counter
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

type request struct {
	public bool
	query  url.Values
}

// RequestOption adjusts a single request.
type RequestOption func(*request)

// Public marks a request that must not carry the Authorization header (login, register, refresh).
func Public() RequestOption {
	return func(r *request) { r.public = true }
}

// Query adds URL query parameters.
func Query(q url.Values) RequestOption {
	return func(r *request) { r.query = q }
}

// Get issues a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post issues a POST with in as JSON body.
func (c *Client) Post(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, in, out, opts...)
}

// Patch issues a PATCH with in as JSON body.
func (c *Client) Patch(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, path, in, out, opts...)
}

// Do sends one request. in (may be nil) is encoded as JSON; out (may be nil) receives the decoded
// 2xx body. Any failure is returned as *apperror.Error. Exactly one attempt is made.
func (c *Client) Do(ctx context.Context, method, path string, in, out any, opts ...RequestOption) error {
	var ro request
	for _, opt := range opts {
		opt(&ro)
	}

	ctx, span := c.tracer.Start(ctx, method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	)

	status, err := c.do(ctx, method, path, in, out, ro)
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	c.count(ctx, method, status)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.KindOf(err).String())
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, ro request) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, &apperror.Error{Kind: apperror.KindValidation, Message: "request could not be encoded", Err: err}
		}
		body = bytes.NewReader(b)
	}

	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(ro.query) > 0 {
		target += "?" + ro.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, &apperror.Error{Kind: apperror.KindServer, Message: apperror.MsgUnexpected, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	if !ro.public {
		token, ok, err := c.store.Get(ctx, storage.KeyAuthToken)
		if err != nil {
			log.Printf("gateway: read access token: %v", err)
		}
		if ok && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, apperror.Network(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode == http.StatusUnauthorized {
			c.clearCredentials(ctx, method, path)
		}
		return resp.StatusCode, apperror.FromResponse(resp.StatusCode, raw)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, &apperror.Error{
			Kind:       apperror.KindServer,
			Message:    apperror.MsgUnexpected,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode %s %s: %w", method, path, err),
		}
	}
	return resp.StatusCode, nil
}

// clearCredentials drops the access token and user after any 401. The refresh token is kept so
// the session manager may still refresh.
func (c *Client) clearCredentials(ctx context.Context, method, path string) {
	if err := c.store.Delete(context.WithoutCancel(ctx), storage.KeyAuthToken, storage.KeyUser); err != nil {
		log.Printf("gateway: clear credentials after 401 on %s %s: %v", method, path, err)
		return
	}
	log.Printf("gateway: 401 on %s %s; cleared stored access token", method, path)
}

func (c *Client) count(ctx context.Context, method string, status int) {
	if c.requests == nil {
		return
	}
	class := "error"
	if status != 0 {
		class = fmt.Sprintf("%dxx", status/100)
	}
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("status_class", class),
	))
}
