package health

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAll_FirstFailureWins(t *testing.T) {
	p := All(
		Fixed(true, ""),
		Fixed(false, "database down"),
		Fixed(false, "cache down"),
	)
	err := p.Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "database down") {
		t.Fatalf("want first failure, got %v", err)
	}
}

func TestAll_SkipsNilAndPasses(t *testing.T) {
	p := All(nil, Fixed(true, ""), nil)
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestAny_PassesIfOnePasses(t *testing.T) {
	p := Any(Fixed(false, "down"), Fixed(true, ""))
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestAny_AllFailReturnsLast(t *testing.T) {
	p := Any(Fixed(false, "first"), Fixed(false, "second"))
	err := p.Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "second") {
		t.Fatalf("want last failure, got %v", err)
	}
}

func TestAny_EmptyFails(t *testing.T) {
	if err := Any().Check(context.Background()); err == nil {
		t.Fatal("empty Any should fail")
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()

	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("open gate should pass: %v", err)
	}

	g.Set("shutting down")
	err := p.Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "shutting down") {
		t.Fatalf("closed gate should fail with reason, got %v", err)
	}

	g.Clear()
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("cleared gate should pass: %v", err)
	}
}

func TestHealthzHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthzHandler(Fixed(true, "")).ServeHTTP(rec, httptest.NewRequest("GET", "/-/healthy", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthzHandler(Fixed(false, "database down")).ServeHTTP(rec, httptest.NewRequest("GET", "/-/healthy", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "database down") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestReadyzHandler_NilProbeIsReady(t *testing.T) {
	rec := httptest.NewRecorder()
	ReadyzHandler(nil).ServeHTTP(rec, httptest.NewRequest("GET", "/-/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCheckFunc_SeesRequestContext(t *testing.T) {
	type key string
	var got context.Context
	p := CheckFunc(func(ctx context.Context) error {
		got = ctx
		return nil
	})
	ctx := context.WithValue(context.Background(), key("k"), "v")
	req := httptest.NewRequest("GET", "/-/healthy", nil).WithContext(ctx)
	HealthzHandler(p).ServeHTTP(httptest.NewRecorder(), req)

	if got.Value(key("k")) != "v" {
		t.Fatal("probe should see request context")
	}
}

func TestFixed_DefaultReason(t *testing.T) {
	err := Fixed(false, "").Check(context.Background())
	if err == nil || err.Error() != "unhealthy" {
		t.Fatalf("got %v", err)
	}
}

func TestAll_DynamicFlip(t *testing.T) {
	healthy := true
	p := All(CheckFunc(func(context.Context) error {
		if !healthy {
			return fmt.Errorf("flipped")
		}
		return nil
	}))
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("initially healthy: %v", err)
	}
	healthy = false
	if err := p.Check(context.Background()); err == nil {
		t.Fatal("should fail after flip")
	}
}
