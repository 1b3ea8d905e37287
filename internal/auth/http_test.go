// Copyright (c) 2026 FieldServe. All rights reserved.

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordventa/fieldserve/internal/platform/constants"
)

// recordingThrottle captures the keys it is asked about and can be flipped
// into denial.
type recordingThrottle struct {
	keys       []string
	deny       bool
	retryAfter int
}

func (throttle *recordingThrottle) Allow(_ context.Context, key string) (bool, int, error) {
	throttle.keys = append(throttle.keys, key)
	if throttle.deny {
		return false, throttle.retryAfter, nil
	}
	return true, 0, nil
}

func newHandlerFixture(t *testing.T, throttle Throttle, principals ...*Principal) (*testFixture, http.Handler) {
	t.Helper()

	fixture := newFixture(t, principals...)
	handler := NewHandler(fixture.service, throttle, throttle, false)

	router := chi.NewRouter()
	router.Mount("/api/v1/auth", handler.Routes())
	return fixture, router
}

func TestLoginThrottle_KeyIsFirstForwardedEntry(t *testing.T) {
	throttle := &recordingThrottle{}
	_, router := newHandlerFixture(t, throttle, activePrincipal(t, 1))

	body := strings.NewReader(`{"email":"tech@fieldserve.test","password":"` + testPassword + `"}`)
	request := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", body)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(constants.HeaderXForwardedFor, "203.0.113.9, 10.0.0.1, 172.16.0.2")
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Len(t, throttle.keys, 1)
	assert.Equal(t, "203.0.113.9", throttle.keys[0],
		"the throttle key is the originating client, not the full proxy chain")
}

func TestLoginThrottle_DenialWritesRetryAfter(t *testing.T) {
	throttle := &recordingThrottle{deny: true, retryAfter: 42}
	_, router := newHandlerFixture(t, throttle, activePrincipal(t, 1))

	body := strings.NewReader(`{"email":"tech@fieldserve.test","password":"` + testPassword + `"}`)
	request := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", body)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, "42", recorder.Header().Get(constants.HeaderRetryAfter))
}
