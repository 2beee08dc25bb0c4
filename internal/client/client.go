// Package client talks to the cins HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/cins/internal/commands"
)

const (
	DefaultBaseURL = "http://localhost:8080/api"
	defaultTimeout = 15 * time.Second
	formType       = "application/x-www-form-urlencoded"
)

var errMissingBaseURL = errors.New("client: base url is required")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%d: %s (%s)", e.StatusCode, e.Detail, e.Code)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Client calls the API endpoints under BaseURL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// SearchParams filters a command search.
type SearchParams struct {
	Keyword    string
	Limit      int
	IncludeIDs bool
}

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("client: invalid base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}, nil
}

// Register creates an account and returns the server message.
func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	var message string
	err := c.do(ctx, http.MethodPost, "/register", "", nil, url.Values{"username": {username}, "password": {password}}, &message)
	return message, err
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var token string
	err := c.do(ctx, http.MethodPost, "/login", "", nil, url.Values{"username": {username}, "password": {password}}, &token)
	return token, err
}

// SearchCommands returns matching commands newest first. Entry IDs are set
// only when params.IncludeIDs is true.
func (c *Client) SearchCommands(ctx context.Context, token string, params SearchParams) ([]commands.Entry, error) {
	query := url.Values{}
	if params.Keyword != "" {
		query.Set("keyword", params.Keyword)
	}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.IncludeIDs {
		query.Set("include_ids", "true")
	}

	if !params.IncludeIDs {
		var texts []string
		if err := c.do(ctx, http.MethodGet, "/commands", token, query, nil, &texts); err != nil {
			return nil, err
		}
		entries := make([]commands.Entry, 0, len(texts))
		for _, text := range texts {
			entries = append(entries, commands.Entry{Text: text})
		}
		return entries, nil
	}

	var pairs [][2]json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/commands", token, query, nil, &pairs); err != nil {
		return nil, err
	}
	entries := make([]commands.Entry, 0, len(pairs))
	for _, pair := range pairs {
		var entry commands.Entry
		if err := json.Unmarshal(pair[0], &entry.ID); err != nil {
			return nil, fmt.Errorf("client: decode command id: %w", err)
		}
		if err := json.Unmarshal(pair[1], &entry.Text); err != nil {
			return nil, fmt.Errorf("client: decode command text: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SaveCommand stores text and returns its identifier.
func (c *Client) SaveCommand(ctx context.Context, token, text string) (int64, error) {
	var response struct {
		ID int64 `json:"id"`
	}
	if err := c.doRaw(ctx, http.MethodPost, "/commands", token, nil, url.Values{"command": {text}}, &response); err != nil {
		return 0, err
	}
	return response.ID, nil
}

// GetMacro returns the command texts of the named macro; an empty name selects the newest.
func (c *Client) GetMacro(ctx context.Context, token, name string) ([]string, error) {
	query := url.Values{}
	if name != "" {
		query.Set("name", name)
	}
	var texts []string
	err := c.do(ctx, http.MethodGet, "/macro", token, query, nil, &texts)
	return texts, err
}

// ListMacros returns the caller's macro names.
func (c *Client) ListMacros(ctx context.Context, token string) ([]string, error) {
	var names []string
	err := c.do(ctx, http.MethodGet, "/macros", token, nil, nil, &names)
	return names, err
}

// SaveMacro creates a macro from commandIDs, a comma or whitespace separated id list.
func (c *Client) SaveMacro(ctx context.Context, token, name, commandIDs string) (string, error) {
	var message string
	err := c.do(ctx, http.MethodPost, "/macro", token, nil, url.Values{"name": {name}, "commands": {commandIDs}}, &message)
	return message, err
}

// do decodes the msg field of a successful response into out.
func (c *Client) do(ctx context.Context, method, path, token string, query, form url.Values, out any) error {
	var envelope struct {
		Msg json.RawMessage `json:"msg"`
	}
	if err := c.doRaw(ctx, method, path, token, query, form, &envelope); err != nil {
		return err
	}
	if out == nil || len(envelope.Msg) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Msg, out); err != nil {
		return fmt.Errorf("client: decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path, token string, query, form url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	request, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if form != nil {
		request.Header.Set("Content-Type", formType)
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: response.StatusCode, Detail: http.StatusText(response.StatusCode)}
		var failure struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(payload, &failure) == nil {
			apiErr.Code = failure.Error
			if failure.Detail != "" {
				apiErr.Detail = failure.Detail
			}
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("client: decode %s response: %w", path, err)
	}
	return nil
}
