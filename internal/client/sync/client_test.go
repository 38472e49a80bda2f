package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/api"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
)

func TestAPIClient_Upload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/sync/contacts/changes", r.URL.Path)
		assert.Equal(t, "Bearer tok1", r.Header.Get(common.AccessTokenHeaderName))

		var req api.UploadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "laptop", req.DeviceID)

		_ = json.NewEncoder(w).Encode(api.UploadResponse{
			Results: []api.UploadItemResult{{RecordID: "rec1", Status: api.ItemCommitted, Version: 7}},
		})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok1")
	resp, err := c.Upload(context.Background(), "contacts", &api.UploadRequest{DeviceID: "laptop"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int64(7), resp.Results[0].Version)
}

func TestAPIClient_DownloadQueryParams(t *testing.T) {
	since := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, since.Format(time.RFC3339Nano), q.Get("since"))
		assert.Equal(t, "500", q.Get("limit"))
		assert.Equal(t, "40", q.Get("offset"))
		_ = json.NewEncoder(w).Encode(api.DownloadResponse{HasMore: false})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok1")
	_, err := c.Download(context.Background(), "contacts", since, 500, 40)
	require.NoError(t, err)
}

func TestAPIClient_DownloadZeroSinceOmitted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("since"))
		_ = json.NewEncoder(w).Encode(api.DownloadResponse{})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok1")
	_, err := c.Download(context.Background(), "contacts", time.Time{}, 500, 0)
	require.NoError(t, err)
}

func TestAPIClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "bad request", status: http.StatusBadRequest, want: common.ErrValidation},
		{name: "unauthorized", status: http.StatusUnauthorized, want: common.ErrUnauthorized},
		{name: "not found", status: http.StatusNotFound, want: common.ErrNotFound},
		{name: "conflict", status: http.StatusConflict, want: common.ErrVersionConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "nope"})
			}))
			defer srv.Close()

			c := NewAPIClient(srv.URL, "tok1")
			_, err := c.Status(context.Background(), "contacts")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAPIClient_RetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(api.StatusResponse{DataType: "contacts"})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok1")
	resp, err := c.Status(context.Background(), "contacts")
	require.NoError(t, err)
	assert.Equal(t, "contacts", resp.DataType)
	assert.Equal(t, 3, calls)
}

func TestAPIClient_ExhaustedRetriesAreRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok1")
	err := c.Ack(context.Background(), "contacts", &api.AckRequest{Version: 1, SyncedAt: time.Now()})
	assert.ErrorIs(t, err, common.ErrRetryable)
}

func TestAPIClient_ConnectionRefusedIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewAPIClient(srv.URL, "tok1")
	_, err := c.Status(context.Background(), "contacts")
	assert.ErrorIs(t, err, common.ErrRetryable)
}
