package main

import (
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestRouteShapes(t *testing.T) {
	r := initRoutes()

	cases := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/callbacks/payments"},
		{"POST", "/api/v1/callbacks/paypal-confirm"},
		{"GET", "/api/v1/batches"},
		{"GET", "/api/v1/batches/0a/quote"},
		{"GET", "/api/v1/orders"},
		{"POST", "/api/v1/orders"},
		{"GET", "/api/v1/orders/0a"},
		{"POST", "/api/v1/orders/0a/checkout-session"},
		{"POST", "/api/v1/orders/0a/release-escrow"},
		{"PUT", "/api/v1/orders/0a/cancel"},
		{"GET", "/api/v1/admin/overview"},
		{"GET", "/api/v1/admin/escrow-audit"},
		{"POST", "/api/v1/admin/escrow-audit/release-batch-payouts"},
		{"GET", "/api/v1/admin/hubs-disputes"},
		{"POST", "/api/v1/admin/disputes"},
		{"PATCH", "/api/v1/admin/disputes/0a/review"},
	}
	for _, c := range cases {
		req := httptest.NewRequest(c.method, c.path, nil)
		var match mux.RouteMatch
		assert.True(t, r.Match(req, &match), "%s %s should be routed", c.method, c.path)
	}

	// retired shapes must not resolve
	gone := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/orders/create"},
		{"POST", "/api/v1/orders/0a/checkout"},
		{"POST", "/api/v1/admin/payouts/batch-release"},
		{"GET", "/api/v1/admin/hubs"},
	}
	for _, c := range gone {
		req := httptest.NewRequest(c.method, c.path, nil)
		var match mux.RouteMatch
		routed := r.Match(req, &match) && match.MatchErr == nil
		assert.False(t, routed, "%s %s should not be routed", c.method, c.path)
	}
}
