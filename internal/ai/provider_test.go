package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, seq iter.Seq2[string, error]) ([]string, error) {
	t.Helper()
	var chunks []string
	for c, err := range seq {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func TestOpenAIStreamChat(t *testing.T) {
	var got openAIChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range []string{"Hel", "lo", " world"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "gpt-4o", Options{MaxTokens: 1000, Temperature: 0.7})
	chunks, err := collect(t, p.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}))
	require.NoError(t, err)
	require.Equal(t, []string{"Hel", "lo", " world"}, chunks)
	require.True(t, got.Stream)
	require.Equal(t, 1000, got.MaxTokens)
	require.Equal(t, "gpt-4o", got.Model)
}

func TestOpenAIStreamChat_MidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"overloaded\"}}\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "", Options{})
	chunks, err := collect(t, p.StreamChat(context.Background(), nil))
	require.EqualError(t, err, "overloaded")
	require.Equal(t, []string{"a"}, chunks)
}

func stallAfter(first string) (http.HandlerFunc, chan struct{}) {
	release := make(chan struct{})
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, first)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}, release
}

func TestOpenAIStreamChat_StalledBackendIsUnavailable(t *testing.T) {
	h, release := stallAfter("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer close(release)

	p := NewOpenAIProvider(srv.URL, "sk-test", "", Options{})
	p.Timeout = 200 * time.Millisecond

	start := time.Now()
	chunks, err := collect(t, p.StreamChat(context.Background(), nil))
	require.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
	require.Equal(t, []string{"Hel"}, chunks)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestOpenAIStreamChat_SlowConsumerIsNotStalled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "", Options{})
	p.Timeout = 100 * time.Millisecond

	var got []string
	for c, err := range p.StreamChat(context.Background(), nil) {
		require.NoError(t, err)
		got = append(got, c)
		time.Sleep(250 * time.Millisecond)
	}
	require.Equal(t, []string{"a", "b"}, got)
}

func TestOpenAIStreamChat_CallerCancelIsNotUnavailable(t *testing.T) {
	h, release := stallAfter("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer close(release)

	p := NewOpenAIProvider(srv.URL, "sk-test", "", Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := collect(t, p.StreamChat(ctx, nil))
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	require.False(t, errors.Is(err, ErrUnavailable))
}

func TestOpenAIChat_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "", Options{})
	_, err := p.Chat(context.Background(), nil)
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestOpenAIChat_ClientErrorIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "", Options{})
	_, err := p.Chat(context.Background(), nil)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrUnavailable))
	require.Contains(t, err.Error(), "bad key")
}

func TestOpenRouterHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "https://example.com", r.Header.Get("HTTP-Referer"))
		require.Equal(t, "agencore", r.Header.Get("X-Title"))
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "or-key", "openrouter/auto", "https://example.com", "agencore", Options{})
	reply, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	require.NoError(t, err)
	require.Equal(t, "ok", reply)
}

func TestOllamaStreamChat_EarlyBreak(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		for _, c := range []string{"one", "two", "three"} {
			fmt.Fprintf(w, "{\"message\":{\"role\":\"assistant\",\"content\":%q},\"done\":false}\n", c)
		}
		fmt.Fprint(w, "{\"done\":true}\n")
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3", Options{})
	var got []string
	for c, err := range p.StreamChat(context.Background(), nil) {
		require.NoError(t, err)
		got = append(got, c)
		if len(got) == 2 {
			break
		}
	}
	require.Equal(t, []string{"one", "two"}, got)

	all, err := collect(t, p.StreamChat(context.Background(), nil))
	require.NoError(t, err)
	require.Equal(t, "onetwothree", strings.Join(all, ""))
}

func TestOllamaStreamChat_StalledBackendIsUnavailable(t *testing.T) {
	h, release := stallAfter("{\"message\":{\"role\":\"assistant\",\"content\":\"one\"},\"done\":false}\n")
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer close(release)

	p := NewOllamaProvider(srv.URL, "llama3", Options{})
	p.Timeout = 200 * time.Millisecond

	chunks, err := collect(t, p.StreamChat(context.Background(), nil))
	require.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
	require.Equal(t, []string{"one"}, chunks)
}

func TestOllamaUnreachable(t *testing.T) {
	p := NewOllamaProvider("http://127.0.0.1:1", "llama3", Options{})
	_, err := collect(t, p.StreamChat(context.Background(), nil))
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry(BackendSettings{OllamaBaseURL: "http://localhost:11434"})
	require.Equal(t, []string{"ollama", "openai", "openrouter"}, r.Names())

	_, err := r.Get(context.Background(), "openai", "")
	require.True(t, errors.Is(err, ErrUnconfigured))

	p, err := ProviderFor(context.Background(), r, "none", "")
	require.NoError(t, err)
	require.Nil(t, p)

	p, err = ProviderFor(context.Background(), r, " Ollama ", "")
	require.NoError(t, err)
	require.IsType(t, &OllamaProvider{}, p)

	_, err = r.Get(context.Background(), "bard", "")
	require.Error(t, err)
}
