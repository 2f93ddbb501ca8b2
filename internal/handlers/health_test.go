package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	r := newTestRouter(false)
	r.GET("/ok", Health(pingFunc(func(context.Context) error { return nil })))
	r.GET("/down", Health(pingFunc(func(context.Context) error { return assert.AnError })))

	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/ok", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(r, http.MethodGet, "/down", "").Code)
}
