package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Client issues JSON-RPC calls against a single HTTP endpoint.
//
// Client is safe for concurrent use. It holds no per-call state; the only
// shared mutable resource is the underlying http.Client's connection pool.
type Client struct {
	url        string
	user       string
	password   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBasicAuth sets the credentials sent with every request.
func WithBasicAuth(user, password string) Option {
	return func(c *Client) {
		c.user = user
		c.password = password
	}
}

// WithHTTPClient sets the HTTP client used for requests. The default is
// http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a client for the endpoint at url. No connection is made
// until the first call.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint this client posts to.
func (c *Client) URL() string {
	return c.url
}

// HTTPClient returns the HTTP client used for requests.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Call invokes method with params and decodes a non-null result into result
// (which may be nil). It reports whether the response carried a result.
//
// A remote error envelope is returned as *Error, unwrapped, even when the
// response also carries a result. All other failures (connection, timeout,
// bodies that are not JSON-RPC envelopes, non-200 replies without an error
// object) are wrapped errors.
func (c *Client) Call(ctx context.Context, method string, params, result any) (bool, error) {
	body, err := json.Marshal(NewRequest(method, params))
	if err != nil {
		return false, errors.Wrapf(err, "%s: encoding request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, errors.Wrapf(err, "%s: creating request", method)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" || c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, errors.Wrapf(err, "%s: request failed", method)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, errors.Wrapf(err, "%s: reading response", method)
	}

	// bitcoind-family nodes report RPC errors with a non-200 status and a
	// JSON body, so a non-200 status is only a remote error when the envelope
	// carries one.
	envelope, err := DecodeResponse(raw)
	if err != nil {
		if resp.StatusCode != http.StatusOK {
			return false, errors.Wrapf(err, "%s: HTTP %s", method, resp.Status)
		}
		return false, errors.Wrapf(err, "%s", method)
	}

	rpcErr, err := envelope.RemoteError()
	if err != nil {
		return false, errors.Wrapf(err, "%s", method)
	}
	if rpcErr != nil {
		return false, rpcErr
	}
	if resp.StatusCode != http.StatusOK {
		return false, errors.Newf("%s: HTTP %s without an error object", method, resp.Status)
	}

	if !envelope.HasResult() {
		return false, nil
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return false, errors.Wrapf(err, "%s: decoding result", method)
		}
	}
	return true, nil
}
