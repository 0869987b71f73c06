package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/zenergy-backend/api/responses"
	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.data[key], _ = value.(string)
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key], _ = value.(string)
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func postWithKey(path, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req.WithContext(WithUserID(req.Context(), "user-1"))
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestMatchRule(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		ttl      time.Duration
		required bool
		ok       bool
	}{
		{"checkout", http.MethodPost, "/api/v1/checkout", criticalIdempotencyTTL, true, true},
		{"withdraw", http.MethodPost, "/api/v1/seller/wallet/withdrawals", criticalIdempotencyTTL, true, true},
		{"cancel", http.MethodPost, "/api/v1/orders/456/cancel", defaultIdempotencyTTL, false, true},
		{"seller status", http.MethodPost, "/api/v1/seller/orders/1/status", defaultIdempotencyTTL, false, true},
		{"confirm payment", http.MethodPost, "/api/admin/v1/orders/1/confirm-payment", defaultIdempotencyTTL, false, true},
		{"list withdrawals", http.MethodGet, "/api/v1/seller/wallet/withdrawals", 0, false, false},
	}
	for _, tt := range tests {
		rule, ok := matchRule(tt.method, tt.path)
		require.Equal(t, tt.ok, ok, tt.name)
		if ok {
			require.Equal(t, tt.ttl, rule.ttl, tt.name)
			require.Equal(t, tt.required, rule.required, tt.name)
		}
	}
}

func TestIdempotencyRequiresHeaderOnCheckout(t *testing.T) {
	called := false
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, postWithKey("/api/v1/checkout", "", `{}`))

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.False(t, called)
}

func TestIdempotencyOptionalHeaderPassesThrough(t *testing.T) {
	calls := 0
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/orders/1/cancel", "", ``))
	}
	require.Equal(t, 2, calls)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	calls := 0
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"o-1"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, postWithKey("/api/v1/checkout", "abc", `{"payment_method":"COD"}`))
	require.Equal(t, http.StatusCreated, first.Code)

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, postWithKey("/api/v1/checkout", "abc", `{"payment_method":"COD"}`))
	require.Equal(t, http.StatusCreated, replay.Code)
	require.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	require.Equal(t, "true", replay.Header().Get(replayHeader))
	require.Equal(t, `{"data":{"id":"o-1"}}`, strings.TrimSpace(replay.Body.String()))
	require.Equal(t, 1, calls)
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/seller/wallet/withdrawals", "xyz", `{"amount":"100"}`))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, postWithKey("/api/v1/seller/wallet/withdrawals", "xyz", `{"amount":"900"}`))
	require.Equal(t, http.StatusConflict, resp.Code)
	require.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, resp))
}

func TestIdempotencyRejectsInFlightDuplicate(t *testing.T) {
	store := newFakeStore()
	var inner http.Handler
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the duplicate arrives while the first request is still running
		dup := httptest.NewRecorder()
		inner.ServeHTTP(dup, postWithKey("/api/v1/checkout", "k1", `{}`))
		require.Equal(t, http.StatusConflict, dup.Code)
		w.WriteHeader(http.StatusCreated)
	}))
	inner = handler

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, postWithKey("/api/v1/checkout", "k1", `{}`))
	require.Equal(t, http.StatusCreated, resp.Code)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, postWithKey("/api/v1/checkout", "retry-me", `{}`))
	require.Equal(t, http.StatusServiceUnavailable, first.Code)
	require.Empty(t, store.data)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, postWithKey("/api/v1/checkout", "retry-me", `{}`))
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, 2, calls)
}

func TestIdempotencyReleasesKeyOnLockTimeout(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeLockTimeout, "stock row locked"))
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, postWithKey("/api/v1/checkout", "locked", `{}`))
	require.Equal(t, http.StatusConflict, first.Code)
	require.Equal(t, string(pkgerrors.CodeLockTimeout), errorCode(t, first))
	require.Empty(t, store.data)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, postWithKey("/api/v1/checkout", "locked", `{}`))
	require.Equal(t, http.StatusCreated, second.Code)
	require.Empty(t, second.Header().Get(replayHeader))
	require.Equal(t, 2, calls)
}

func TestIdempotencyStoresTerminalRejection(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeStateConflict, "order already shipped"))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, postWithKey("/api/v1/orders/o-1/cancel", "done", `{}`))
	require.Equal(t, http.StatusUnprocessableEntity, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, postWithKey("/api/v1/orders/o-1/cancel", "done", `{}`))
	require.Equal(t, http.StatusUnprocessableEntity, second.Code)
	require.Equal(t, "true", second.Header().Get(replayHeader))
	require.Equal(t, 1, calls)
}

func TestIdempotencyScopesKeysPerUser(t *testing.T) {
	calls := 0
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/checkout", "same", `{}`))

	other := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	other.Header.Set(idempotencyHeader, "same")
	other = other.WithContext(WithUserID(other.Context(), "user-2"))
	handler.ServeHTTP(httptest.NewRecorder(), other)
	require.Equal(t, 2, calls)
}
