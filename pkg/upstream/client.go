// Package upstream holds the HTTP plumbing shared by the third-party API clients.
// Every failure it returns is tagged with a cacheaside Kind.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/illmade-knight/go-newtab/pkg/cacheaside"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of an error response is kept in APIError.
const maxErrorBody = 512

// APIError is returned when an upstream API answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// NewHTTPClient returns the client used when none is injected.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// Get performs a GET and returns the body of a 2xx response together with its
// content type. Transport errors and non-2xx statuses are network failures.
func Get(ctx context.Context, client *http.Client, op, url string, header http.Header) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", cacheaside.Network(op, fmt.Errorf("failed to create request: %w", err))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", cacheaside.Network(op, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", cacheaside.Network(op, &APIError{StatusCode: resp.StatusCode, Message: string(msg)})
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", cacheaside.Network(op, fmt.Errorf("failed to read response body: %w", err))
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// GetJSON performs a GET and decodes a JSON body into out. A body that does not
// decode is a parse failure.
func GetJSON(ctx context.Context, client *http.Client, op, url string, header http.Header, out any) error {
	if header == nil {
		header = http.Header{}
	}
	header.Set("Accept", "application/json")
	body, _, err := Get(ctx, client, op, url, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return cacheaside.Parse(op, fmt.Errorf("failed to parse JSON response: %w", err))
	}
	return nil
}
