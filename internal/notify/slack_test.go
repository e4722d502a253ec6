package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlackNotify(t *testing.T) {
	var got payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlack(server.URL)
	err := n.Notify(context.Background(), SeverityDanger, "Failed to create order.")
	require.NoError(t, err)

	require.Len(t, got.Attachments, 1)
	require.Equal(t, "yajirobe", got.Attachments[0].Title)
	require.Equal(t, "Failed to create order.", got.Attachments[0].Text)
	require.Equal(t, "danger", got.Attachments[0].Color)
}

func TestSlackNotifyNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer server.Close()

	err := NewSlack(server.URL).Notify(context.Background(), SeverityGood, "hello")
	require.Error(t, err)
}
