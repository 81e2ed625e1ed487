package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	testCases := []struct {
		baseURL string
		valid   bool
	}{
		{"http://localhost:8545", true},
		{"https://mainnet.example.com/v3/key", true},
		{"localhost:8545", false},
		{"", false},
	}
	for _, tc := range testCases {
		t.Run(tc.baseURL, func(t *testing.T) {
			_, err := New(tc.baseURL)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestClientPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		switch r.URL.Path {
		case "/echo":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
			assert.Equal(t, "1", r.URL.Query().Get("page"))
			_, _ = w.Write(body)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found"}`))
		}
	}))
	defer server.Close()

	client, err := New(server.URL, Config{Headers: map[string]string{"X-Api-Key": "secret"}})
	require.NoError(t, err)
	defer client.CloseIdleConnections()

	t.Run("success", func(t *testing.T) {
		resp, err := client.Post(context.Background(), "/echo", RequestOptions{
			Body:  []byte(`{"value":42}`),
			Query: map[string][]string{"page": {"1"}},
		})
		require.NoError(t, err)
		assert.True(t, resp.IsSuccess())

		var out struct {
			Value int `json:"value"`
		}
		require.NoError(t, resp.UnmarshalBody(&out))
		assert.Equal(t, 42, out.Value)
	})

	t.Run("not found", func(t *testing.T) {
		resp, err := client.Post(context.Background(), "/missing", RequestOptions{Body: []byte(`{}`)})
		require.NoError(t, err)
		assert.False(t, resp.IsSuccess())
		assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := client.Post(ctx, "/echo", RequestOptions{Body: []byte(`{}`)})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, err := New(server.URL, Config{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.Post(context.Background(), "", RequestOptions{Body: []byte(`{}`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.Timeout)
}
