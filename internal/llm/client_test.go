package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) *Config {
	return &Config{
		APIKey:    "test-key",
		APIURL:    url,
		MaxTokens: 1000,
		Timeout:   30,
	}
}

func TestNewClient(t *testing.T) {
	config := testConfig("https://api.example.com/")

	client, err := NewClient(config)
	require.NoError(t, err)
	assert.Equal(t, config, client.config)
	assert.Equal(t, "https://api.example.com", client.baseURL)
	assert.NotNil(t, client.httpClient)

	_, err = NewClient(&Config{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestClientComplete(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "https://sub.example", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "subs", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "test-id",
			"object": "chat.completion",
			"model": "fast-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "[{\"id\":1}]"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
		}`))
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.SiteURL = "https://sub.example"
	config.AppName = "subs"
	client, err := NewClient(config)
	require.NoError(t, err)

	content, err := client.Complete(context.Background(), Request{
		Model:       "fast-model",
		System:      "be brief",
		User:        "hello",
		Temperature: 0.4,
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, content)

	assert.Equal(t, "fast-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[1].Content)
	assert.Equal(t, 1000, got.MaxTokens)
	assert.InDelta(t, 0.4, got.Temperature, 1e-9)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestClientErrorHandling(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "api error body",
			status: http.StatusBadRequest,
			body:   `{"error": {"message": "Invalid API key", "type": "invalid_request_error", "code": 401}}`,
			check: func(t *testing.T, err error) {
				var apiErr *Error
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, "Invalid API key", apiErr.Message)
			},
		},
		{
			name:   "bare status",
			status: http.StatusBadGateway,
			body:   `upstream down`,
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
				assert.Equal(t, "upstream down", statusErr.Body)
			},
		},
		{
			name:   "invalid json",
			status: http.StatusOK,
			body:   `not json`,
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "failed to parse response")
			},
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   `{"choices": []}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrEmptyContent)
			},
		},
		{
			name:   "blank content",
			status: http.StatusOK,
			body:   `{"choices": [{"message": {"role": "assistant", "content": "  "}}]}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrEmptyContent)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewClient(testConfig(server.URL))
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), Request{Model: "m", User: "hi"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClientRequiresModel(t *testing.T) {
	client, err := NewClient(testConfig("http://127.0.0.1:1"))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{User: "hi"})
	assert.ErrorContains(t, err, "model is required")
}

func TestClientConcurrentRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Complete(context.Background(), Request{Model: "m", User: "hi"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestNew_SelectsProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     any
	}{
		{"", &Client{}},
		{ProviderOpenAI, &Client{}},
		{ProviderGemini, &GeminiClient{}},
		{ProviderOllama, &OllamaClient{}},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			config := testConfig("http://localhost:11434")
			config.Provider = tt.provider
			config.DefaultModel = "m"
			c, err := New(config)
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
		})
	}

	_, err := New(&Config{Provider: "acme"})
	assert.ErrorContains(t, err, "unsupported LLM provider")
}

func TestOpenRouterIntegration(t *testing.T) {
	_ = godotenv.Load("./.env")
	apiKey := os.Getenv("LLM_API_KEY")
	model := os.Getenv("LLM_FAST_MODEL")
	if apiKey == "" || model == "" {
		t.Skip("Set LLM_API_KEY and LLM_FAST_MODEL environment variables to run this test")
	}

	client, err := NewClient(&Config{
		APIKey:    apiKey,
		APIURL:    "https://openrouter.ai/api/v1",
		MaxTokens: 100,
		Timeout:   30,
	})
	require.NoError(t, err)

	content, err := client.Complete(context.Background(), Request{
		Model:       model,
		System:      "Reply with a JSON object.",
		User:        `Return {"answer": 4} for 2+2.`,
		Temperature: 0,
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Contains(t, content, "4")
}
