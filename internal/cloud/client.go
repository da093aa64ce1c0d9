package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"pipetrack/internal/config"
)

const (
	// DefaultHost is the production tracking API endpoint.
	DefaultHost = "https://api.pipetrack.io"

	// HostEnvVar overrides the tracking API endpoint.
	HostEnvVar = "PIPETRACK_CLOUD_HOST"
	// KeyEnvVar overrides the API key from the credential store.
	KeyEnvVar = "PIPETRACK_CLOUD_KEY"

	apiKeyHeader = "api_key"

	defaultTimeout = 30 * time.Second
)

// User-facing messages for the failure classes a command converts to
// plain stdout text. The wording is part of the CLI contract.
var (
	ErrMissingKey    = errors.New("API_Key not found, add one with: pipetrack set-key <key>")
	ErrInvalidAPIKey = errors.New("API_Key not valid, please validate your key")
	ErrNoPipelineID  = errors.New("No input pipeline_id")
	ErrNoStatus      = errors.New("No input pipeline status")
)

// NotFoundError reports an unknown pipeline id. The message differs
// between reads and deletes, matching what users see.
type NotFoundError struct {
	ID      string
	deleted bool
}

func (e *NotFoundError) Error() string {
	if e.deleted {
		return fmt.Sprintf("Pipeline %s doesn't exist", e.ID)
	}
	return fmt.Sprintf("Pipeline %s was not found", e.ID)
}

// Client talks to the tracking API.
type Client struct {
	host       string
	key        string
	httpClient *http.Client
}

// NewClient creates a client authenticated with the key from
// PIPETRACK_CLOUD_KEY or, when unset, the local credential store.
// ErrMissingKey is returned when neither yields a key.
func NewClient() (*Client, error) {
	key := os.Getenv(KeyEnvVar)
	if key == "" {
		stored, err := config.GetKey()
		if err != nil {
			return nil, ErrMissingKey
		}
		key = stored
	}
	return NewClientWithKey(Host(), key), nil
}

// NewClientWithKey creates a client against a specific endpoint and key.
func NewClientWithKey(host, key string) *Client {
	return &Client{
		host:       host,
		key:        key,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Host returns the tracking API endpoint, honoring the environment
// override.
func Host() string {
	if host := os.Getenv(HostEnvVar); host != "" {
		return host
	}
	return DefaultHost
}

// WritePipeline upserts a pipeline run record: the server creates the
// record on first write for a given id and overwrites its fields on
// subsequent writes. The pipeline id (server-generated when the record
// carries none) is returned.
func (c *Client) WritePipeline(ctx context.Context, p Pipeline) (string, error) {
	if p.ID == "" {
		return "", ErrNoPipelineID
	}
	if p.Status == "" {
		return "", ErrNoStatus
	}

	body, err := c.do(ctx, http.MethodPost, "/pipelines", p, "")
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"pipeline_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("could not parse write response: %w", err)
	}
	return resp.ID, nil
}

// GetPipelines reads pipeline run records. With an empty id all records
// are returned; with an id, a one-element slice. The id "latest"
// resolves to the most recently written record. The dag field is only
// present in the results when includeDag is set.
func (c *Client) GetPipelines(ctx context.Context, id string, includeDag bool) ([]Pipeline, error) {
	path := "/pipelines"
	if id != "" {
		path += "/" + id
	}

	body, err := c.do(ctx, http.MethodGet, path, nil, includeDagQuery(includeDag))
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, err
	}

	var pipelines []Pipeline
	if err := json.Unmarshal(body, &pipelines); err != nil {
		return nil, fmt.Errorf("could not parse pipelines response: %w", err)
	}
	return pipelines, nil
}

// DeletePipeline removes a pipeline run record and returns a
// confirmation message containing the id.
func (c *Client) DeletePipeline(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", ErrNoPipelineID
	}

	_, err := c.do(ctx, http.MethodDelete, "/pipelines/"+id, nil, "")
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return "", &NotFoundError{ID: id, deleted: true}
		}
		return "", err
	}
	return fmt.Sprintf("Pipeline %s was deleted", id), nil
}

func includeDagQuery(includeDag bool) string {
	if includeDag {
		return "dag=true"
	}
	return ""
}

// do sends one authenticated request and returns the response body.
// Status codes map onto the CLI error taxonomy: 401 is an invalid key,
// 404 an unknown pipeline.
func (c *Client) do(ctx context.Context, method, path string, payload any, query string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("could not serialize request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.host + path
	if query != "" {
		url += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("could not build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.key)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to tracking API failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrInvalidAPIKey
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("tracking API returned %s: %s", resp.Status, apiErrorMessage(body))
	}
	return body, nil
}

func apiErrorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(body)
}
