// Package emysound is a client for the EmySound audio fingerprint service.
// It registers tracks (Insert) and looks up similar ones (Query); all
// matching happens on the service.
package emysound

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"emysound/pkg/identity"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultAPIRoot is the service root of a local EmySound installation.
	DefaultAPIRoot = "http://localhost:3340/api/v1.1/"

	// DefaultUsername is the administrative principal; its secret is empty.
	DefaultUsername = "ADMIN"

	tracksEndpoint = "Tracks"
	queryEndpoint  = "Query"
	mediaTypeAudio = "Audio"
)

// HTTPDoer sends HTTP requests. *http.Client satisfies it; tests and
// instrumentation wrap it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to one EmySound service. It holds no per-call state and is
// safe for concurrent use.
type Client struct {
	root     *url.URL
	username string
	password string
	http     HTTPDoer
	identity *identity.Policy
	logger   logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP transport.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		c.http = doer
	}
}

// WithCredentials sets the Basic auth principal and secret.
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithIdentityPolicy sets the policy used to assign identifiers on Insert.
func WithIdentityPolicy(policy *identity.Policy) Option {
	return func(c *Client) {
		c.identity = policy
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the service rooted at apiRoot.
func New(apiRoot string, opts ...Option) (*Client, error) {
	if !strings.HasSuffix(apiRoot, "/") {
		apiRoot += "/"
	}
	root, err := url.Parse(apiRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid API root: %w", err)
	}
	if root.Scheme != "http" && root.Scheme != "https" {
		return nil, fmt.Errorf("invalid API root %q: scheme must be http or https", apiRoot)
	}

	c := &Client{
		root:     root,
		username: DefaultUsername,
		http:     &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.identity == nil {
		policy, err := identity.NewPolicy(identity.SchemeMetadata, false)
		if err != nil {
			return nil, err
		}
		c.identity = policy
	}
	if c.logger == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		c.logger = logger
	}

	return c, nil
}

// IdentityPolicy returns the policy used on Insert.
func (c *Client) IdentityPolicy() *identity.Policy {
	return c.identity
}

// endpoint resolves a service path against the API root.
func (c *Client) endpoint(path string, params url.Values) *url.URL {
	u := c.root.ResolveReference(&url.URL{Path: path})
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u
}

// formField is a text part of a multipart submission.
type formField struct {
	name  string
	value string
}

// submission is one multipart upload: text fields followed by the file.
type submission struct {
	op       string
	path     string
	params   url.Values
	fields   []formField
	fileName string
	payload  []byte
}

// response is a fully read service response.
type response struct {
	status int
	body   []byte
}

// encode writes the multipart body. The file part is sent as
// application/octet-stream under the form name "file".
func (s *submission) encode() (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, f := range s.fields {
		if err := writer.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", f.name, err)
		}
	}

	part, err := writer.CreateFormFile("file", s.fileName)
	if err != nil {
		return nil, "", fmt.Errorf("preparing form content: %w", err)
	}
	if _, err := part.Write(s.payload); err != nil {
		return nil, "", fmt.Errorf("preparing form content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("preparing form content: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

// send performs an authenticated POST of a submission and reads the whole
// response. Only network level failures are returned as errors; status
// handling belongs to the caller.
func (c *Client) send(ctx context.Context, s *submission) (*response, error) {
	body, contentType, err := s.encode()
	if err != nil {
		return nil, err
	}

	target := c.endpoint(s.path, s.params)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)

	c.logger.WithFields(logrus.Fields{
		"operation": s.op,
		"url":       target.String(),
		"file":      s.fileName,
		"bytes":     len(s.payload),
	}).Debug("Sending request to EmySound")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: target.String(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: target.String(), Err: fmt.Errorf("read response body: %w", err)}
	}

	return &response{status: resp.StatusCode, body: data}, nil
}

// reject builds the error for a non-200 response and logs it.
func (c *Client) reject(op string, resp *response) error {
	text := string(resp.body)
	c.logger.WithFields(logrus.Fields{
		"operation": op,
		"status":    resp.status,
		"body":      text,
	}).Errorf("Failed to %s track", op)
	return &ServiceRejectedError{Op: op, Status: resp.status, Body: text}
}
