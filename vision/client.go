package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Client talks to an Ollama-compatible model server over HTTP and
// implements Gateway. A single Client owns the loaded model for its
// lifetime; construct one, Load it, then Generate as many times as
// needed.
type Client struct {
	server  string
	model   string
	timeout time.Duration
	http    *http.Client

	mu    sync.Mutex
	state ModelState
}

// NewClient creates a gateway client for the given server URL and model
// name. timeout bounds each Generate request; zero means no limit.
func NewClient(server, model string, timeout time.Duration) *Client {
	return &Client{
		server:  strings.TrimRight(server, "/"),
		model:   model,
		timeout: timeout,
		http:    &http.Client{},
		state:   Unloaded,
	}
}

// State returns the current model lifecycle state
func (c *Client) State() ModelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

type pullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

type pullResponse struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
	Error     string `json:"error"`
}

// Load pulls the model on the server, streaming progress events to
// onProgress. Idempotent: a call while Loading or Ready returns nil
// immediately. A previous Failed state is treated as Unloaded so the
// load can be retried.
func (c *Client) Load(ctx context.Context, onProgress ProgressFunc) error {
	c.mu.Lock()
	if c.state == Ready || c.state == Loading {
		c.mu.Unlock()
		return nil
	}
	c.state = Loading
	c.mu.Unlock()

	err := c.pull(ctx, onProgress)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = Failed
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	c.state = Ready
	return nil
}

func (c *Client) pull(ctx context.Context, onProgress ProgressFunc) error {
	body, err := json.Marshal(pullRequest{Name: c.model, Stream: true})
	if err != nil {
		return err
	}

	resp, err := c.post(ctx, "/api/pull", body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var event pullResponse
		if err := dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode pull event: %w", err)
		}
		if event.Error != "" {
			return errors.New(event.Error)
		}
		if onProgress != nil {
			percent := 0
			if event.Total > 0 {
				percent = int(event.Completed * 100 / event.Total)
			} else if event.Status == "success" {
				percent = 100
			}
			onProgress(event.Status, percent)
		}
		if event.Status == "success" {
			return nil
		}
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Images  []string        `json:"images"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

// Greedy decoding with a fixed repetition penalty and token budget, so
// identical weights and input reproduce identical output.
type generateOptions struct {
	Temperature   float64 `json:"temperature"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	NumPredict    int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Generate runs the model over a single image, invoking onToken with the
// cumulative text as tokens stream in and returning the final text.
func (c *Client) Generate(ctx context.Context, image []byte, prompt string, onToken TokenFunc) (string, error) {
	if c.State() != Ready {
		return "", ErrNotLoaded
	}

	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
		Stream: true,
		Options: generateOptions{
			Temperature:   0,
			RepeatPenalty: 1.1,
			NumPredict:    512,
		},
	})
	if err != nil {
		return "", err
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.post(reqCtx, "/api/generate", body)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", serverError(resp)
	}

	var sb strings.Builder
	dec := json.NewDecoder(resp.Body)
	for {
		var event generateResponse
		if err := dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("failed to decode generate event: %w", err)
		}
		if event.Error != "" {
			return "", errors.New(event.Error)
		}
		if event.Response != "" {
			sb.WriteString(event.Response)
			if onToken != nil {
				onToken(sb.String())
			}
		}
		if event.Done {
			break
		}
	}

	return sb.String(), nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Check verifies that the server answers and that the configured model
// is present in its model list
func (c *Client) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.server+"/api/tags", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("model server not reachable at %s: %w", c.server, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("failed to decode model list: %w", err)
	}

	for _, m := range tags.Models {
		if m.Name == c.model || strings.HasPrefix(m.Name, c.model+":") {
			return nil
		}
	}
	return fmt.Errorf("model %q not found on server %s", c.model, c.server)
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func serverError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = "no additional information available"
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, msg)
}
