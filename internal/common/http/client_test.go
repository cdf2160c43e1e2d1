package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"echo": in["name"]})
	}))
	defer srv.Close()

	var out map[string]string
	err := NewClient(time.Second).PostJSON(context.Background(), srv.URL,
		map[string]string{"Authorization": "Bearer abc"}, map[string]string{"name": "jo"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "jo", out["echo"])
}

func TestPostForm_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "tok", r.PostForm.Get("token"))
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(time.Second).PostForm(context.Background(), srv.URL, url.Values{"token": {"tok"}}, nil)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.True(t, se.Transient())
	assert.False(t, (&StatusError{StatusCode: http.StatusBadRequest}).Transient())
}
