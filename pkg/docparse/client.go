// Package docparse provides a client for a hosted document parsing service
// that returns typed entities with confidence scores for invoice PDFs.
package docparse

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the document parsing operations.
type Client interface {
	// ProcessFile reads the PDF at path and submits it for parsing.
	ProcessFile(ctx context.Context, path string) (*ProcessResponse, error)
	// Process submits raw PDF bytes for parsing.
	Process(ctx context.Context, pdfData []byte) (*ProcessResponse, error)
}

// ProcessResponse is the parsed service response.
type ProcessResponse struct {
	Document ParsedDocument `json:"document"`
}

// ParsedDocument holds the recognized entities and full text.
type ParsedDocument struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities"`
}

// Entity is one recognized field. Confidence is 0-1. Line item entities carry
// their cells as nested Properties.
type Entity struct {
	Type            string   `json:"type"`
	MentionText     string   `json:"mentionText"`
	Confidence      float64  `json:"confidence"`
	NormalizedValue string   `json:"normalizedValue,omitempty"`
	Properties      []Entity `json:"properties,omitempty"`
}

// Value returns the normalized text when present, the raw mention otherwise.
func (e Entity) Value() string {
	if e.NormalizedValue != "" {
		return e.NormalizedValue
	}
	return e.MentionText
}

type processRequest struct {
	Document inlineDocument `json:"document"`
}

type inlineDocument struct {
	Content  string `json:"content"`
	MimeType string `json:"mimeType"`
}

// Option configures the docparse client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithProcessor selects a service-side processor profile.
func WithProcessor(name string) Option {
	return func(c *httpClient) {
		c.processor = name
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey    string
	baseURL   string
	processor string
	http      *http.Client
}

// NewClient creates a new document parsing client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		baseURL:   "https://api.docparse.dev",
		processor: "invoice",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-success response from the service. Callers can pull
// the status code out of the error chain to decide whether the failure was
// the service's fault.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("docparse: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status points at throttling or a server-side
// outage rather than a rejected document.
func (e *StatusError) Retryable() bool {
	return retryableStatusCode(e.StatusCode)
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503). The request body is rebuilt from
// payload on each attempt.
func (c *httpClient) retryDo(ctx context.Context, url string, payload []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, 0, eris.Wrap(err, "docparse: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "docparse: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("docparse: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) ProcessFile(ctx context.Context, path string) (*ProcessResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "docparse: read PDF %s", path)
	}
	return c.Process(ctx, data)
}

func (c *httpClient) Process(ctx context.Context, pdfData []byte) (*ProcessResponse, error) {
	payload, err := json.Marshal(processRequest{
		Document: inlineDocument{
			Content:  base64.StdEncoding.EncodeToString(pdfData),
			MimeType: "application/pdf",
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "docparse: marshal request")
	}

	url := c.baseURL + "/v1/processors/" + c.processor + ":process"
	body, statusCode, err := c.retryDo(ctx, url, payload)
	if err != nil {
		return nil, eris.Wrap(err, "docparse: request failed")
	}

	if statusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: statusCode, Body: string(body)}
	}

	var result ProcessResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "docparse: unmarshal response")
	}

	return &result, nil
}
