// Package client provides the HTTP plumbing for calling the remote catalog API:
// a plain JSON client and the authenticated Gateway built on top of it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/internal/constants"
	"github.com/alpyxn/moviestar/internal/models"
	"github.com/alpyxn/moviestar/pkg/logger"
)

// ErrInvalidPath is returned for request paths containing dot segments.
var ErrInvalidPath = errors.New("invalid request path")

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 64 << 10

// BaseClient provides core HTTP client functionality for calling the catalog API.
// It handles request/response marshaling, error parsing, and logging.
type BaseClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *logrus.Logger
}

// NewBaseClient creates a new BaseClient for HTTP operations.
//
// Parameters:
//   - baseURL: Base URL for the API (e.g., "http://localhost:8081/api")
//   - timeout: HTTP request timeout duration
//   - logger: Structured logger for HTTP operations
func NewBaseClient(
	baseURL string,
	timeout time.Duration,
	logger *logrus.Logger,
) *BaseClient {
	return &BaseClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// RequestOption customizes a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	query       url.Values
	headers     http.Header
	rawBody     []byte
	contentType string
}

// WithQuery adds query parameters to the request URL.
func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		for k, vs := range q {
			for _, v := range vs {
				o.query.Add(k, v)
			}
		}
	}
}

// WithHeader sets a request header. Authorization cannot be set this way.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if strings.EqualFold(key, constants.HeaderAuthorization) {
			return
		}
		if o.headers == nil {
			o.headers = http.Header{}
		}
		o.headers.Set(key, value)
	}
}

// WithRawBody sends data as-is instead of JSON-encoding the body argument.
// It is used when forwarding a request body unchanged.
func WithRawBody(data []byte, contentType string) RequestOption {
	return func(o *requestOptions) {
		o.rawBody = data
		o.contentType = contentType
	}
}

func buildOptions(opts []RequestOption) *requestOptions {
	o := &requestOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// payload is an encoded request body that can be replayed on retry.
type payload struct {
	data        []byte
	contentType string
}

func encodeBody(body interface{}, o *requestOptions) (*payload, error) {
	if o.rawBody != nil {
		return &payload{data: o.rawBody, contentType: o.contentType}, nil
	}
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return &payload{data: data, contentType: constants.ContentTypeJSON}, nil
}

// newRequest builds a request for path relative to the base URL. token is
// attached as a bearer credential when non-empty.
func (c *BaseClient) newRequest(
	ctx context.Context,
	method string,
	path string,
	body *payload,
	o *requestOptions,
	token string,
) (*http.Request, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	if len(o.query) > 0 {
		target.RawQuery = o.query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body.data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	for k, vs := range o.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil && body.contentType != "" {
		req.Header.Set(constants.HeaderContentType, body.contentType)
	}
	if req.Header.Get(constants.HeaderAccept) == "" {
		req.Header.Set(constants.HeaderAccept, constants.ContentTypeJSON)
	}
	if id := logger.CorrelationID(ctx); id != "" {
		req.Header.Set(constants.HeaderXRequestID, id)
	}
	if token != "" {
		req.Header.Set(constants.HeaderAuthorization, "Bearer "+token)
	}

	return req, nil
}

// resolve places path under the base URL. path is taken literally: percent
// signs are sent encoded rather than decoded a second time, and dot
// segments are refused so a request cannot climb out of the base path.
func (c *BaseClient) resolve(path string) (*url.URL, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "." || seg == ".." {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	target := *base
	target.Path = base.Path + "/" + strings.TrimPrefix(path, "/")
	target.RawPath = ""
	target.RawQuery = ""
	return &target, nil
}

func (c *BaseClient) send(req *http.Request) (*http.Response, error) {
	entry := logger.WithCorrelationID(req.Context(), c.logger).WithFields(logrus.Fields{
		"method":        req.Method,
		"url":           req.URL.Redacted(),
		"authenticated": req.Header.Get(constants.HeaderAuthorization) != "",
	})

	entry.Debug("Sending HTTP request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		entry.WithError(err).Error("HTTP request failed")
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	entry.WithField("status", resp.StatusCode).Debug("Received HTTP response")
	return resp, nil
}

// Do executes an unauthenticated HTTP request with JSON marshaling.
// Returns the HTTP response. Caller is responsible for closing response body.
func (c *BaseClient) Do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	opts ...RequestOption,
) (*http.Response, error) {
	o := buildOptions(opts)
	p, err := encodeBody(body, o)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, method, path, p, o, "")
	if err != nil {
		return nil, err
	}
	return c.send(req)
}

// Ping checks that the API answers. Any HTTP status counts as reachable.
func (c *BaseClient) Ping(ctx context.Context) error {
	resp, err := c.Do(ctx, http.MethodHead, "/", nil)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// BaseURL returns the configured base URL for this client.
func (c *BaseClient) BaseURL() string {
	return c.baseURL
}

// ParseErrorResponse reads an error response into a *models.APIError and
// closes the body. The raw body is preserved for verbatim pass-through.
func (c *BaseClient) ParseErrorResponse(resp *http.Response) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		ctx := context.Background()
		if resp.Request != nil {
			ctx = resp.Request.Context()
		}
		// A truncated body is not relayed as if it were the API's answer.
		logger.WithCorrelationID(ctx, c.logger).WithError(err).
			WithField("status", resp.StatusCode).Warn("Failed to read error response body")
		raw = nil
	}
	apiErr := &models.APIError{StatusCode: resp.StatusCode, Body: raw}

	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail,omitempty"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &errResp) == nil {
		apiErr.Code = errResp.Error
		apiErr.Message = errResp.Message
		if apiErr.Message == "" {
			apiErr.Message = errResp.Detail
		}
	} else if len(raw) > 0 && len(raw) < 512 {
		apiErr.Message = strings.TrimSpace(string(raw))
	}

	return apiErr
}

// DecodeResponse decodes a successful JSON response into out (which may be
// nil) and closes the body. Non-2xx responses become *models.APIError.
func (c *BaseClient) DecodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.ParseErrorResponse(resp)
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
