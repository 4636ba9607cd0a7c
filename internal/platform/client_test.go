package platform

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string, opts ...func(*Options)) *Client {
	o := Options{
		BaseURL:       baseURL + "/",
		APIVersion:    "v19.0",
		Token:         "test-token",
		PhoneNumberID: "1234567890",
	}
	for _, fn := range opts {
		fn(&o)
	}
	return New(o, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_ResolveMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v19.0/m1", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","url":"https://lookaside.example/m1","mime_type":"application/pdf","sha256":"abc","file_size":10,"id":"m1"}`))
	}))
	defer srv.Close()

	info, err := newTestClient(srv.URL).ResolveMedia(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, &MediaInfo{
		ID:       "m1",
		URL:      "https://lookaside.example/m1",
		MimeType: "application/pdf",
		SHA256:   "abc",
		FileSize: 10,
	}, info)
}

func TestClient_ResolveMediaAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Error validating access token","type":"OAuthException","code":190}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ResolveMedia(context.Background(), "m1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, 190, apiErr.Code)
	assert.Equal(t, "Error validating access token", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "status 401")
}

func TestClient_ResolveMediaEmptyURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"m1"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ResolveMedia(context.Background(), "m1")
	assert.ErrorContains(t, err, "empty url")
}

func TestClient_ResolveMediaTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := newTestClient(srv.URL, func(o *Options) { o.APITimeout = 50 * time.Millisecond })
	start := time.Now()
	_, err := client.ResolveMedia(context.Background(), "m1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_FetchStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Fetch(context.Background(), srv.URL+"/files/m1")
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
	assert.Equal(t, int64(10), resp.ContentLength)
}

func TestClient_FetchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Fetch(context.Background(), srv.URL+"/files/gone")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "platform returned status 404", apiErr.Error())
}

func TestClient_SendText(t *testing.T) {
	var got textMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v19.0/1234567890/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).SendText(context.Background(), "15550001111", "Your code is 4821.")
	require.NoError(t, err)
	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "15550001111", got.To)
	assert.Equal(t, "text", got.Type)
	assert.Equal(t, "Your code is 4821.", got.Text.Body)
}

func TestClient_SendTextWithoutPhoneNumber(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1", func(o *Options) { o.PhoneNumberID = "" })
	assert.Error(t, client.SendText(context.Background(), "1", "hi"))
}

func TestClient_EscapesMediaID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/a%2Fb", r.URL.RawPath)
		_, _ = w.Write([]byte(`{"id":"a/b","url":"https://lookaside.example/x"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ResolveMedia(context.Background(), "a/b")
	require.NoError(t, err)
}
