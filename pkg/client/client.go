package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Client talks to a running svcpanel daemon over its HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for the client. The daemon itself
// serves plain HTTP; TLS matters when it sits behind a terminating proxy.
type TLSClientConfig struct {
	Enabled    bool
	CACert     string // CA certificate file path
	ClientCert string // Client certificate file
	ClientKey  string // Client private key file
	ServerName string // Server name for verification
	SkipVerify bool
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a svcpanel API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if (config.TLS != nil && config.TLS.Enabled) || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable reports whether the daemon answers on its status endpoint.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		c.logger.Debug("failed to create reachability request", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Services lists the configured service definitions.
func (c *Client) Services(ctx context.Context) ([]ServiceDefinition, error) {
	var defs []ServiceDefinition
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/services", &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// Status returns the snapshot of one service.
func (c *Client) Status(ctx context.Context, name string) (ServiceStatus, error) {
	var st ServiceStatus
	u := c.baseURL + "/status?name=" + url.QueryEscape(name)
	if err := c.doJSON(ctx, http.MethodGet, u, &st); err != nil {
		return ServiceStatus{}, err
	}
	return st, nil
}

// StatusAll returns snapshots of every configured service.
func (c *Client) StatusAll(ctx context.Context) ([]ServiceStatus, error) {
	var sts []ServiceStatus
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/status", &sts); err != nil {
		return nil, err
	}
	return sts, nil
}

// Log fetches the daemon's activity log. n limits the tail; n <= 0 fetches all
// retained entries.
func (c *Client) Log(ctx context.Context, n int) ([]LogEntry, error) {
	u := c.baseURL + "/log"
	if n > 0 {
		u += "?n=" + strconv.Itoa(n)
	}
	var entries []LogEntry
	if err := c.doJSON(ctx, http.MethodGet, u, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Start starts the named service.
func (c *Client) Start(ctx context.Context, name string) (ServiceStatus, error) {
	c.logger.Debug("starting service", "name", name)
	var st ServiceStatus
	u := c.baseURL + "/start?name=" + url.QueryEscape(name)
	if err := c.doJSON(ctx, http.MethodPost, u, &st); err != nil {
		return ServiceStatus{}, err
	}
	return st, nil
}

// Stop stops the named service. A non-empty Warning on the result means the
// grace period expired and the process was force killed.
func (c *Client) Stop(ctx context.Context, name string) (StopResult, error) {
	c.logger.Debug("stopping service", "name", name)
	u := c.baseURL + "/stop?name=" + url.QueryEscape(name)
	body, err := c.do(ctx, http.MethodPost, u)
	if err != nil {
		return StopResult{}, err
	}
	// A clean stop answers with a bare status, an escalated one wraps it
	// together with a warning.
	var probe struct {
		Status  *ServiceStatus `json:"status"`
		Warning string         `json:"warning"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.Status != nil {
		return StopResult{Status: *probe.Status, Warning: probe.Warning}, nil
	}
	var st ServiceStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return StopResult{}, fmt.Errorf("decode response: %w", err)
	}
	return StopResult{Status: st}, nil
}

// StartAll starts every service, or only the auto-start ones when autoOnly is
// set. Per-service failures are reported in the results, not as an error.
func (c *Client) StartAll(ctx context.Context, autoOnly bool) ([]BulkResult, error) {
	u := c.baseURL + "/start-all"
	if autoOnly {
		u += "?auto=1"
	}
	var results []BulkResult
	if err := c.doJSON(ctx, http.MethodPost, u, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// StopAll stops every service.
func (c *Client) StopAll(ctx context.Context) ([]BulkResult, error) {
	var results []BulkResult
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/stop-all", &results); err != nil {
		return nil, err
	}
	return results, nil
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}

	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	return tlsConfig, nil
}

func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = caCertPool
	return nil
}

// do performs the request and returns the raw body of a 200 response.
func (c *Client) do(ctx context.Context, method, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", u)
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
			return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
		return nil, fmt.Errorf("API error: %s", errorResp.Error)
	}
	return body, nil
}

func (c *Client) doJSON(ctx context.Context, method, u string, out any) error {
	body, err := c.do(ctx, method, u)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
