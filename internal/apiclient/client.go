// Package apiclient talks to the forecasting backend over HTTP/JSON.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harga-pangan/console/internal/apperr"
	"github.com/harga-pangan/console/internal/logging"
	"github.com/labstack/gommon/log"
)

// HeaderRequestID is sent on every request so backend logs can be matched
// to console logs.
const HeaderRequestID = "X-Request-ID"

// TokenSource provides the current bearer token, or "" when signed out.
type TokenSource interface {
	Token() string
}

// Client wraps the backend API. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger replaces the default logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logging.New("apiclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokenSource attaches the session the bearer token is read from.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// statusEnvelope is implemented by responses that carry the backend's
// {"status": ..., "message": ...} fields.
type statusEnvelope interface {
	envelope() (status, message string)
}

// Envelope holds the status fields every backend response carries.
type Envelope struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *Envelope) envelope() (string, string) { return e.Status, e.Message }

// Get issues a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	_, err := c.do(ctx, http.MethodGet, path, query, nil, "", out)
	return err
}

// PostJSON issues a POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, path, nil, bytes.NewReader(data), "application/json", out)
	return err
}

// Delete issues a DELETE with a JSON body.
func (c *Client) Delete(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	_, err = c.do(ctx, http.MethodDelete, path, nil, bytes.NewReader(data), "application/json", out)
	return err
}

// FilePart is the file section of a multipart request.
type FilePart struct {
	Field    string
	FileName string
	Content  io.Reader
}

// PostMultipart issues a multipart POST. The boundary and Content-Type
// come from the multipart writer.
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, file FilePart, out any) error {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(file.Field, file.FileName)
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return fmt.Errorf("copying file content: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing multipart writer: %w", err)
	}

	_, err = c.do(ctx, http.MethodPost, path, nil, body, writer.FormDataContentType(), out)
	return err
}

// GetBytes fetches a binary resource and returns its body and content type.
func (c *Client) GetBytes(ctx context.Context, path string, query url.Values) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil, "", nil)
	if err != nil {
		return nil, "", err
	}
	return resp.body, resp.contentType, nil
}

type requestIDKey struct{}

// WithRequestID makes calls made with ctx reuse id instead of a fresh one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request ID carried by ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type rawResponse struct {
	status      int
	body        []byte
	contentType string
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) (*rawResponse, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	reqID := RequestIDFrom(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	req.Header.Set(HeaderRequestID, reqID)

	// Token is copied here; a logout after this point does not touch the
	// request already built.
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warnf("%s %s [%s] no response: %v", method, path, shortID(reqID), err)
		return nil, &apperr.NetworkError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.NetworkError{Endpoint: path, Err: fmt.Errorf("reading body: %w", err)}
	}

	c.logger.Debugf("%s %s [%s] %d in %s", method, path, shortID(reqID), resp.StatusCode, time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Errorf("%s %s [%s] status %d: %s", method, path, shortID(reqID), resp.StatusCode, truncate(data, 512))
		return nil, &apperr.APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   path,
			RawBody:    string(data),
			Message:    messageFrom(data),
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decoding %s response: %w", path, err)
		}
		if env, ok := out.(statusEnvelope); ok {
			if status, msg := env.envelope(); status == "error" {
				c.logger.Errorf("%s %s [%s] backend reported error: %s", method, path, shortID(reqID), msg)
				return nil, &apperr.APIError{
					StatusCode: resp.StatusCode,
					Endpoint:   path,
					RawBody:    string(data),
					Message:    msg,
				}
			}
		}
	}

	return &rawResponse{
		status:      resp.StatusCode,
		body:        data,
		contentType: resp.Header.Get("Content-Type"),
	}, nil
}

func messageFrom(body []byte) string {
	var env struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	switch {
	case env.Message != "":
		return env.Message
	case env.Msg != "":
		return env.Msg
	default:
		return env.Error
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
