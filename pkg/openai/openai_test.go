package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/igolaizola/igotutor/pkg/memory"
)

func sseBody(chunks ...string) string {
	var sb strings.Builder
	sb.WriteString(": keep-alive\n\n")
	for _, c := range chunks {
		js, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": c}}},
		})
		fmt.Fprintf(&sb, "data: %s\n\n", js)
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

func readAll(t *testing.T, s *Stream) []string {
	t.Helper()
	var got []string
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return got
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, chunk)
	}
}

func TestStreamFragmented(t *testing.T) {
	chunks := []string{"héllo", " 世界", " ✓", "done"}
	body := io.NopCloser(iotest.OneByteReader(strings.NewReader(sseBody(chunks...))))
	got := readAll(t, NewStream(body))
	if strings.Join(got, "") != strings.Join(chunks, "") {
		t.Errorf("got %q, want %q", got, chunks)
	}
	if len(got) != len(chunks) {
		t.Errorf("got %d chunks, want %d", len(got), len(chunks))
	}
}

func TestStreamWithoutDone(t *testing.T) {
	body := sseBody("a", "b")
	body = strings.TrimSuffix(body, "data: [DONE]\n\n")
	// Last event without a trailing newline
	body = strings.TrimSuffix(body, "\n\n")
	got := readAll(t, NewStream(io.NopCloser(strings.NewReader(body))))
	if strings.Join(got, "") != "ab" {
		t.Errorf("got %q, want %q", got, "ab")
	}
}

func TestStreamSkipsNoise(t *testing.T) {
	body := "event: ping\n\ndata: not json\n\ndata: {\"choices\":[]}\n\n" + sseBody("x")
	got := readAll(t, NewStream(io.NopCloser(strings.NewReader(body))))
	if len(got) != 1 || got[0] != "x" {
		t.Errorf("got %q, want [x]", got)
	}
}

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test-key", WithBaseURL(srv.URL))
}

func TestComplete(t *testing.T) {
	var got chatRequest
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"4"}}],"usage":{"total_tokens":12}}`)
	})

	msgs := []memory.Message{{Role: memory.RoleUser, Content: "2+2?"}}
	completion, err := c.Complete(context.Background(), msgs, Options{MaxTokens: 600})
	if err != nil {
		t.Fatal(err)
	}
	if completion.Text != "4" {
		t.Errorf("Text = %q, want %q", completion.Text, "4")
	}
	if completion.TotalTokens != 12 {
		t.Errorf("TotalTokens = %d, want 12", completion.TotalTokens)
	}
	if len(completion.Raw) == 0 {
		t.Error("Raw is empty")
	}
	if got.Model != DefaultModel || got.MaxTokens != 600 || got.Temperature != DefaultTemperature || got.TopP != DefaultTopP || got.Stream {
		t.Errorf("unexpected request %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "2+2?" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})
	completion, err := c.Complete(context.Background(), nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if completion.Text != "No response" {
		t.Errorf("Text = %q", completion.Text)
	}
}

func TestAPIError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down"}}`)
	})
	for _, stream := range []bool{false, true} {
		var err error
		if stream {
			_, err = c.Stream(context.Background(), nil, Options{})
		} else {
			_, err = c.Complete(context.Background(), nil, Options{})
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("stream=%v: error = %v, want APIError", stream, err)
		}
		if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Body != `{"error":{"message":"slow down"}}` {
			t.Errorf("stream=%v: unexpected error %+v", stream, apiErr)
		}
	}
}

func TestStreamMatchesComplete(t *testing.T) {
	chunks := []string{"The ", "answer ", "is ", "4."}
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			js, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": strings.Join(chunks, "")}}},
			})
			_, _ = w.Write(js)
			return
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("unexpected accept header %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		body := sseBody(chunks...)
		// Deliver the body in uneven fragments
		for i := 0; i < len(body); i += 7 {
			end := i + 7
			if end > len(body) {
				end = len(body)
			}
			_, _ = io.WriteString(w, body[i:end])
			w.(http.Flusher).Flush()
		}
	})

	completion, err := c.Complete(context.Background(), nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	s, err := c.Stream(context.Background(), nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got := strings.Join(readAll(t, s), "")
	if got != completion.Text {
		t.Errorf("streamed %q, buffered %q", got, completion.Text)
	}
}

func TestOptionsMerge(t *testing.T) {
	c := New("k", WithDefaults(Options{Model: "m", MaxTokens: 10}))
	if c.Model() != "m" {
		t.Errorf("Model() = %q", c.Model())
	}

	type values struct {
		Model       string
		Temperature float32
		MaxTokens   int
		TopP        float32
	}
	tests := []struct {
		name string
		in   Options
		want values
	}{
		{"defaults", Options{}, values{"m", DefaultTemperature, 10, DefaultTopP}},
		{"temperature", Options{Temperature: Float32(0.7)}, values{"m", 0.7, 10, DefaultTopP}},
		{"zero temperature", Options{Temperature: Float32(0)}, values{"m", 0, 10, DefaultTopP}},
		{"zero top p", Options{TopP: Float32(0), Model: "x"}, values{"x", DefaultTemperature, 10, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.in.merge(c.defaults)
			got := values{o.Model, deref(o.Temperature), o.MaxTokens, deref(o.TopP)}
			if got != tt.want {
				t.Errorf("merge() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestZeroTemperature(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"4"}}]}`)
	}))
	defer srv.Close()

	// A zero temperature set as client default reaches the api
	c := New("k", WithBaseURL(srv.URL), WithDefaults(Options{Temperature: Float32(0)}))
	if _, err := c.Complete(context.Background(), nil, Options{}); err != nil {
		t.Fatal(err)
	}
	if got.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", got.Temperature)
	}

	// And so does one set per request
	c = New("k", WithBaseURL(srv.URL))
	if _, err := c.Complete(context.Background(), nil, Options{Temperature: Float32(0)}); err != nil {
		t.Fatal(err)
	}
	if got.Temperature != 0 || got.TopP != DefaultTopP {
		t.Errorf("unexpected request %+v", got)
	}
}
