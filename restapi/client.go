// Package restapi is the HTTP client for the terminals REST API.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/agentuity/go-terminals/config"
	"github.com/agentuity/go-terminals/logger"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

const (
	terminalsPath  = "/api/terminals"
	defaultRetries = 3
	maxBodyPreview = 512
	tracerName     = "github.com/agentuity/go-terminals/restapi"
)

// ErrInvalidModel is returned when the server sends a terminal without a name.
var ErrInvalidModel = errors.New("invalid terminal model")

// Model is the server-reported descriptor of a terminal session.
type Model struct {
	Name string `json:"name"`
}

// StartOptions are sent when creating a terminal. Both fields are optional;
// the server picks a name when Name is empty.
type StartOptions struct {
	Name string `json:"name,omitempty"`
	Cwd  string `json:"cwd,omitempty"`
}

type Client struct {
	settings    *config.Settings
	client      *http.Client
	logger      logger.Logger
	tracer      trace.Tracer
	retries     int
	backoffBase time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithRetries sets how many attempts are made for idempotent requests that
// fail before reaching the server. Values below 1 mean a single attempt.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = max(n, 1) }
}

// WithTracerProvider sets the provider used for request spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// New returns a client for the server described by settings.
func New(settings *config.Settings, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		settings:    settings,
		client:      &http.Client{Timeout: settings.RequestTimeout.Duration()},
		logger:      log.WithPrefix("[restapi]"),
		tracer:      otel.Tracer(tracerName),
		retries:     defaultRetries,
		backoffBase: 150 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings returns the settings the client was created with.
func (c *Client) Settings() *config.Settings {
	return c.settings
}

// IsAvailable reports whether the server exposes terminals.
func (c *Client) IsAvailable() bool {
	return c.settings.TerminalsAvailable
}

// ListRunning returns every running terminal.
func (c *Client) ListRunning(ctx context.Context, settings *config.Settings) ([]Model, error) {
	var models []Model
	if err := c.do(ctx, settings, http.MethodGet, terminalsPath, nil, &models); err != nil {
		return nil, err
	}
	for _, m := range models {
		if m.Name == "" {
			return nil, errors.Wrap(ErrInvalidModel, "listing terminals")
		}
	}
	return models, nil
}

// StartNew asks the server for a new terminal.
func (c *Client) StartNew(ctx context.Context, opts StartOptions, settings *config.Settings) (Model, error) {
	var model Model
	if err := c.do(ctx, settings, http.MethodPost, terminalsPath, opts, &model); err != nil {
		return Model{}, err
	}
	if model.Name == "" {
		return Model{}, errors.Wrap(ErrInvalidModel, "starting terminal")
	}
	return model, nil
}

// Shutdown deletes the named terminal.
func (c *Client) Shutdown(ctx context.Context, name string, settings *config.Settings) error {
	if name == "" {
		return errors.Wrap(ErrInvalidModel, "shutting down terminal")
	}
	return c.do(ctx, settings, http.MethodDelete, terminalsPath+"/"+url.PathEscape(name), nil, nil)
}

func UserAgent() string {
	gitSHA := Commit
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				gitSHA = setting.Value
			}
		}
	}
	return "go-terminals/" + Version + " (" + gitSHA + ")"
}

func isIdempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodDelete
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, io.EOF) {
		return true
	}
	return strings.Contains(err.Error(), "EOF")
}

func bodyPreview(body []byte) string {
	if len(body) > maxBodyPreview {
		return string(body[:maxBodyPreview]) + "[truncated]"
	}
	return string(body)
}

func (c *Client) endpoint(settings *config.Settings, p string) (string, error) {
	u, err := url.Parse(settings.BaseURL)
	if err != nil {
		return "", errors.Wrapf(err, "error parsing base url %q", settings.BaseURL)
	}
	return strings.TrimRight(u.String(), "/") + p, nil
}

func (c *Client) do(ctx context.Context, settings *config.Settings, method, p string, payload, response any) error {
	if settings == nil {
		settings = c.settings
	}
	ctx, span := c.tracer.Start(ctx, "terminals "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", p),
		))
	defer span.End()

	status, err := c.send(ctx, settings, method, p, payload, response)
	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) send(ctx context.Context, settings *config.Settings, method, p string, payload, response any) (int, error) {
	u, err := c.endpoint(settings, p)
	if err != nil {
		return 0, err
	}
	var body []byte
	if payload != nil {
		if body, err = json.Marshal(payload); err != nil {
			return 0, errors.Wrap(err, "error marshalling payload")
		}
	}
	attempts := 1
	if isIdempotent(method) {
		attempts = c.retries
	}

	var resp *http.Response
	for i := range attempts {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return 0, errors.Wrap(err, "error creating request")
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("User-Agent", UserAgent())
		req.Header.Set("Accept", "application/json")
		if settings.Token != "" {
			req.Header.Set("Authorization", "token "+settings.Token)
		}
		for k, v := range settings.Headers {
			req.Header.Set(k, v)
		}
		c.logger.Trace("sending request: %s %s", method, u)
		resp, err = c.client.Do(req)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if !shouldRetry(err) || i == attempts-1 {
			return 0, &NetworkError{Method: method, URL: u, Err: err}
		}
		delay := time.Duration(float64(c.backoffBase) * math.Pow(2, float64(i)))
		c.logger.Debug("request %s %s failed (%v), retrying in %s", method, u, err, delay)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &NetworkError{Method: method, URL: u, Err: errors.Wrap(err, "error reading response body")}
	}
	c.logger.Debug("response %s %s: %s", method, u, resp.Status)

	if resp.StatusCode > 299 {
		rerr := &ResponseError{
			Method:  method,
			URL:     u,
			Status:  resp.StatusCode,
			Body:    bodyPreview(respBody),
			TraceID: resp.Header.Get("traceparent"),
		}
		if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
			var apiResponse struct {
				Message string `json:"message"`
				Reason  string `json:"reason"`
			}
			if json.Unmarshal(respBody, &apiResponse) == nil {
				rerr.Message = apiResponse.Message
				if rerr.Message == "" {
					rerr.Message = apiResponse.Reason
				}
			}
		}
		return resp.StatusCode, rerr
	}

	if response != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, response); err != nil {
			return resp.StatusCode, errors.Wrapf(err, "error decoding response from %s %s", method, u)
		}
	}
	return resp.StatusCode, nil
}
