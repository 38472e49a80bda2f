package sync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/api"
)

func TestAPIClient_CreateBlob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/blobs", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.PresignResponse{Key: "users/1/2026/8/abc", URL: "http://signed/put"})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok1")
	resp, err := c.CreateBlob(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "users/1/2026/8/abc", resp.Key)
	assert.Equal(t, "http://signed/put", resp.URL)
}

func TestAPIClient_BlobURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/blobs/users/1/2026/8/abc", r.URL.Path)
		_ = json.NewEncoder(w).Encode(api.PresignResponse{URL: "http://signed/get"})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok1")
	resp, err := c.BlobURL(context.Background(), "users/1/2026/8/abc")
	require.NoError(t, err)
	assert.Equal(t, "http://signed/get", resp.URL)
}

func TestAPIClient_UploadToPresignedURL(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		received, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok1")
	require.NoError(t, c.UploadToPresignedURL(context.Background(), srv.URL+"/bucket/key", []byte("blob")))
	assert.Equal(t, []byte("blob"), received)
}

func TestAPIClient_UploadToPresignedURL_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok1")
	err := c.UploadToPresignedURL(context.Background(), srv.URL+"/bucket/key", []byte("blob"))
	assert.Error(t, err)
}
