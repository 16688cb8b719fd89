// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckerHealthy(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("ok", func(ctx context.Context) error { return nil })

	status, checks := c.Health(context.Background())
	if status != StatusHealthy {
		t.Errorf("status = %v, want healthy", status)
	}
	if len(checks) != 1 || checks[0].Status != StatusHealthy {
		t.Errorf("checks = %+v", checks)
	}
}

func TestCheckerDegraded(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("ok", func(ctx context.Context) error { return nil })
	c.Register("bad", func(ctx context.Context) error { return errors.New("boom") })

	status, _ := c.Health(context.Background())
	if status != StatusDegraded {
		t.Errorf("status = %v, want degraded", status)
	}
}

func TestCheckerCaches(t *testing.T) {
	calls := 0
	c := NewChecker(time.Minute)
	c.Register("counted", func(ctx context.Context) error {
		calls++
		return nil
	})

	c.Health(context.Background())
	c.Health(context.Background())
	if calls != 1 {
		t.Errorf("check ran %d times within TTL, want 1", calls)
	}
}

func TestReadinessHandlerFailsOnDegraded(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("bad", func(ctx context.Context) error { return errors.New("boom") })

	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness status = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	c.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, degraded should still return 200", rec.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("liveness status = %d, want 200", rec.Code)
	}
}
