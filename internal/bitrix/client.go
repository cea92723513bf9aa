// Package bitrix bridges the intake flow to a Bitrix24 portal through its
// inbound REST webhook. Two backend flavours are supported behind one
// capability contract (create / comment / close): classic tasks and CRM
// smart-process items.
//
// Every remote call is bounded by a per-call timeout, throttled by a token
// bucket (portals reject bursts above ~2 req/s), and never retried. Transport
// errors, non-2xx responses and malformed payloads are all reported as plain
// failure to the caller.
package bitrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// ErrNotConfigured is returned by Call when no webhook base URL is set.
var ErrNotConfigured = errors.New("bitrix: webhook base url not configured")

// Client performs form-encoded calls against `<base>/<method>`.
type Client struct {
	base    string
	http    *resty.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClient builds a Client. A non-positive rps disables throttling.
func NewClient(baseURL string, timeout time.Duration, rps float64, burst int) *Client {
	base := strings.TrimSpace(baseURL)
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lim := rate.Inf
	if rps > 0 {
		lim = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Client{
		base:    base,
		http:    resty.New().SetTimeout(timeout),
		limiter: rate.NewLimiter(lim, burst),
		timeout: timeout,
	}
}

// envelope is the common Bitrix24 REST response shape.
type envelope struct {
	Result           json.RawMessage `json:"result"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// Call invokes method with form fields and returns the raw `result` payload.
func (c *Client) Call(ctx context.Context, method string, form map[string]string) (json.RawMessage, error) {
	ctx, span := otel.Tracer("bitrix").Start(ctx, method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("bitrix.method", method)),
	)
	defer span.End()

	start := time.Now()
	res, err := c.call(ctx, method, form)
	observeCall(method, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Str("method", method).Msg("bitrix call failed")
		return nil, err
	}
	return res, nil
}

func (c *Client) call(ctx context.Context, method string, form map[string]string) (json.RawMessage, error) {
	if c.base == "" {
		return nil, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("bitrix: %s: throttle: %w", method, err)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(c.base + method)
	if err != nil {
		return nil, fmt.Errorf("bitrix: %s: %w", method, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bitrix: %s: http status %d", method, resp.StatusCode())
	}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("bitrix: %s: decode: %w", method, err)
	}
	if env.Error != "" {
		return nil, fmt.Errorf("bitrix: %s: %s: %s", method, env.Error, env.ErrorDescription)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil, fmt.Errorf("bitrix: %s: empty result", method)
	}
	return env.Result, nil
}

// flexID decodes ids that Bitrix24 returns either as numbers or as strings.
type flexID int64

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return errors.New("bitrix: empty id")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("bitrix: bad id %q: %w", s, err)
	}
	*f = flexID(n)
	return nil
}
