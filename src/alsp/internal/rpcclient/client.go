// Package rpcclient issues JSON-over-HTTP requests to the local language
// server. One POST per call, JSON request and response bodies.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/uber-go/tally"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

const (
	_configKeyServer = "server"

	_defaultServiceName    = "exa.language_server_pb.LanguageServerService"
	_defaultRequestTimeout = 30 * time.Second
)

// Error is a structured RPC failure.
type Error struct {
	// StatusCode is set for non-2xx HTTP responses.
	StatusCode int
	// Body is the raw response body of a non-2xx response. Callers may
	// introspect the JSON inside for service-level error codes.
	Body []byte
	// Err is set for transport failures (connection refused, timeout with no
	// response).
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rpc transport failure: %v", e.Err)
	}
	return fmt.Sprintf("rpc failed with status %d: %s", e.StatusCode, e.Body)
}

// Unwrap exposes the underlying transport error, if any.
func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the failure is a rate-limit or timeout style HTTP
// response that is expected under load.
func (e *Error) Transient() bool {
	return e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusServiceUnavailable
}

// Benign reports whether the failure is an expected control outcome rather
// than a fault: a transient status, a service-level canceled/aborted code, or
// the server reporting itself inactive. Benign failures resolve completion
// requests as "no results" and are never surfaced to the user.
func (e *Error) Benign() bool {
	if e.Transient() {
		return true
	}
	switch gjson.GetBytes(e.Body, "code").String() {
	case "canceled", "aborted":
		return true
	}
	return strings.Contains(gjson.GetBytes(e.Body, "state.state").String(), "INACTIVE")
}

// Client issues calls to the language server on a discovered port.
type Client interface {
	// Call posts payload to http://127.0.0.1:<port>/<service>/<method> and
	// returns the response body. Failures are returned as *Error. Callers
	// cancel by canceling ctx; any late response must be routed to a no-op by
	// the caller.
	Call(ctx context.Context, port int, method string, payload interface{}) ([]byte, error)
}

// Params define values to be used by the client.
type Params struct {
	fx.In

	Logger *zap.SugaredLogger
	Config config.Provider
	Stats  tally.Scope
}

type clientConfig struct {
	ServiceName    string `yaml:"serviceName"`
	RequestTimeout string `yaml:"requestTimeout"`
}

type client struct {
	http    *http.Client
	service string
	logger  *zap.SugaredLogger
	stats   tally.Scope
}

// New creates a Client using the server config block.
func New(p Params) (Client, error) {
	var cfg clientConfig
	if err := p.Config.Get(_configKeyServer).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKeyServer, err)
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = _defaultServiceName
	}
	timeout := _defaultRequestTimeout
	if cfg.RequestTimeout != "" {
		parsed, err := time.ParseDuration(cfg.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing requestTimeout: %w", err)
		}
		timeout = parsed
	}

	return &client{
		http:    &http.Client{Timeout: timeout},
		service: cfg.ServiceName,
		logger:  p.Logger.With("component", "rpcclient"),
		stats:   p.Stats.SubScope("rpc"),
	}, nil
}

func (c *client) Call(ctx context.Context, port int, method string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/%s/%s", port, c.service, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.stats.Counter("transport_error").Inc(1)
		return nil, &Error{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.stats.Counter("transport_error").Inc(1)
		return nil, &Error{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.stats.Counter("service_error").Inc(1)
		c.logger.Debugw("rpc returned non-2xx status", "method", method, "status", resp.StatusCode)
		return nil, &Error{StatusCode: resp.StatusCode, Body: respBody}
	}

	return respBody, nil
}
