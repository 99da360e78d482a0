package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
)

// newPullServer returns a test server whose /api/pull endpoint streams the
// given NDJSON lines and counts how many pulls were requested
func newPullServer(t *testing.T, lines []string, pulls *atomic.Int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pull" {
			http.NotFound(w, r)
			return
		}
		pulls.Add(1)
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
	}))
}

func TestClient_Load(t *testing.T) {
	var pulls atomic.Int32
	srv := newPullServer(t, []string{
		`{"status":"pulling manifest"}`,
		`{"status":"downloading","completed":50,"total":100}`,
		`{"status":"downloading","completed":100,"total":100}`,
		`{"status":"success"}`,
	}, &pulls)
	defer srv.Close()

	client := NewClient(srv.URL, "llava", 0)

	var percents []int
	err := client.Load(context.Background(), func(status string, percent int) {
		percents = append(percents, percent)
	})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if client.State() != Ready {
		t.Errorf("Expected state Ready, got %v", client.State())
	}
	expected := []int{0, 50, 100, 100}
	if !reflect.DeepEqual(percents, expected) {
		t.Errorf("Progress percents %v, expected %v", percents, expected)
	}
}

func TestClient_LoadIdempotent(t *testing.T) {
	var pulls atomic.Int32
	srv := newPullServer(t, []string{`{"status":"success"}`}, &pulls)
	defer srv.Close()

	client := NewClient(srv.URL, "llava", 0)

	if err := client.Load(context.Background(), nil); err != nil {
		t.Fatalf("First Load failed: %v", err)
	}
	if err := client.Load(context.Background(), nil); err != nil {
		t.Fatalf("Second Load failed: %v", err)
	}

	if got := pulls.Load(); got != 1 {
		t.Errorf("Expected exactly 1 pull request, got %d", got)
	}
}

func TestClient_LoadFailureAllowsRetry(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "model storage offline", http.StatusInternalServerError)
			return
		}
		fmt.Fprintln(w, `{"status":"success"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "llava", 0)

	err := client.Load(context.Background(), nil)
	if !errors.Is(err, ErrModelLoad) {
		t.Fatalf("Expected ErrModelLoad, got %v", err)
	}
	if client.State() != Failed {
		t.Errorf("Expected state Failed, got %v", client.State())
	}

	fail.Store(false)
	if err := client.Load(context.Background(), nil); err != nil {
		t.Fatalf("Retry Load failed: %v", err)
	}
	if client.State() != Ready {
		t.Errorf("Expected state Ready after retry, got %v", client.State())
	}
}

func TestClient_GenerateBeforeLoad(t *testing.T) {
	client := NewClient("http://localhost:0", "llava", 0)

	_, err := client.Generate(context.Background(), []byte{0x01}, "Describe this image", nil)
	if !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Expected ErrNotLoaded, got %v", err)
	}
}

func TestClient_GenerateStreamsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/pull":
			fmt.Fprintln(w, `{"status":"success"}`)
		case "/api/generate":
			var req generateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if req.Prompt != "Describe this image" {
				http.Error(w, "unexpected prompt", http.StatusBadRequest)
				return
			}
			if len(req.Images) != 1 {
				http.Error(w, "expected one image", http.StatusBadRequest)
				return
			}
			if req.Options.Temperature != 0 {
				http.Error(w, "expected greedy decoding", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, `{"response":"A ","done":false}`)
			fmt.Fprintln(w, `{"response":"grey ","done":false}`)
			fmt.Fprintln(w, `{"response":"cat.","done":false}`)
			fmt.Fprintln(w, `{"response":"","done":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "llava", 0)
	if err := client.Load(context.Background(), nil); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var cumulative []string
	text, err := client.Generate(context.Background(), []byte{0xFF, 0xD8}, "Describe this image", func(s string) {
		cumulative = append(cumulative, s)
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if text != "A grey cat." {
		t.Errorf("Final text %q, expected %q", text, "A grey cat.")
	}
	expected := []string{"A ", "A grey ", "A grey cat."}
	if !reflect.DeepEqual(cumulative, expected) {
		t.Errorf("Token stream %v, expected %v", cumulative, expected)
	}

	// Cumulative text must only extend
	for i := 1; i < len(cumulative); i++ {
		if !strings.HasPrefix(cumulative[i], cumulative[i-1]) {
			t.Errorf("Token stream regressed: %q does not extend %q", cumulative[i], cumulative[i-1])
		}
	}
}

func TestClient_GenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/pull":
			fmt.Fprintln(w, `{"status":"success"}`)
		case "/api/generate":
			fmt.Fprintln(w, `{"error":"out of memory"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "llava", 0)
	if err := client.Load(context.Background(), nil); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	_, err := client.Generate(context.Background(), []byte{0x01}, "Describe this image", nil)
	if err == nil {
		t.Fatal("Expected error from server-side generation failure")
	}
	if !strings.Contains(err.Error(), "out of memory") {
		t.Errorf("Expected server error message, got %v", err)
	}
}

func TestClient_Check(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		expectErr bool
	}{
		{"Exact match", "mistral:7b", false},
		{"Tagged match", "llava", false},
		{"Missing model", "moondream", true},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintln(w, `{"models":[{"name":"llava:latest"},{"name":"mistral:7b"}]}`)
	}))
	defer srv.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(srv.URL, tt.model, 0)
			err := client.Check(context.Background())
			if tt.expectErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected success, got %v", err)
			}
		})
	}
}

func TestModelState_String(t *testing.T) {
	tests := []struct {
		state    ModelState
		expected string
	}{
		{Unloaded, "unloaded"},
		{Loading, "loading"},
		{Ready, "ready"},
		{Failed, "failed"},
		{ModelState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("ModelState(%d).String() = %q, expected %q", tt.state, got, tt.expected)
		}
	}
}
