package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
	"github.com/mvoronin-dev/pocketledger/internal/common"
)

func staticToken(tok string) TokenSource {
	return func(context.Context) (string, error) { return tok, nil }
}

func TestCreate_SendsBearerAndReturnsServerRecord(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/transactions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"srv-1","amount":"50"}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, srv.Client(), staticToken("tok123"))
	resp, err := c.Create(context.Background(), models.CollectionTransactions, json.RawMessage(`{"amount":"50"}`))
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok123", gotAuth)

	var rec struct {
		Id string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp, &rec))
	assert.Equal(t, "srv-1", rec.Id)
}

func TestDo_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, srv.Client(), staticToken(""))
	err := c.Update(context.Background(), models.CollectionAccounts, "a1", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnauthorized))
}

func TestDo_RetriesTransportErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			// kill the connection without a response
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, srv.Client(), nil)
	err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestDo_HTTPErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, srv.Client(), nil)
	err := c.Delete(context.Background(), models.CollectionCategories, "c1")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "HTTP statuses are not transport errors")
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["password"] == "secret" {
			_, _ = w.Write([]byte(`{"token":"jwt-abc"}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, srv.Client(), nil)

	tok, err := c.Login(context.Background(), "u@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt-abc", tok)

	_, err = c.Login(context.Background(), "u@example.com", "wrong")
	assert.True(t, errors.Is(err, common.ErrUnauthorized))
}
