package cfg

import (
	"flag"
	"strings"
	"testing"
)

func defaults(t *testing.T) App {
	t.Helper()
	var c App
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse defaults: %v", err)
	}
	return c
}

func validCfg(t *testing.T) App {
	c := defaults(t)
	c.PGPassword = "hunter2"
	return c
}

func TestValidate_DefaultsPlusPassword(t *testing.T) {
	if err := Validate(validCfg(t)); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate_RequiresDBPasswordSource(t *testing.T) {
	c := defaults(t)
	err := Validate(c)
	if err == nil || !strings.Contains(err.Error(), "PG_PASSWORD") {
		t.Fatalf("expected password source error, got %v", err)
	}

	c.PGPasswordSSMParam = "/rebates/db/password"
	if err := Validate(c); err != nil {
		t.Fatalf("ssm param should satisfy password source: %v", err)
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	c := validCfg(t)
	c.HTTPPort = 0
	c.LogLevel = "verbose"
	c.PGSSLMode = "yes"

	err := Validate(c)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"HTTP_PORT", "LOG_LEVEL", "PG_SSLMODE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestValidate_PortsMustDiffer(t *testing.T) {
	c := validCfg(t)
	c.AdminPort = c.HTTPPort
	if err := Validate(c); err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected same-port error, got %v", err)
	}
}

func TestValidate_TracingRequiresEndpoint(t *testing.T) {
	c := validCfg(t)
	c.EnableTracing = true
	if err := Validate(c); err == nil || !strings.Contains(err.Error(), "OTLP_ENDPOINT") {
		t.Fatalf("expected OTLP_ENDPOINT error, got %v", err)
	}
	c.OTLPEndpoint = "collector:4317"
	if err := Validate(c); err != nil {
		t.Fatalf("host:port endpoint should validate: %v", err)
	}
}

func TestValidate_ReputationBounds(t *testing.T) {
	c := validCfg(t)
	c.RateReputationFloor = 95
	c.RateReputationCeil = 90
	if err := Validate(c); err == nil || !strings.Contains(err.Error(), "reputation") {
		t.Fatalf("expected reputation bounds error, got %v", err)
	}
}

func TestValidate_ProductionRequiresIDPKey(t *testing.T) {
	c := validCfg(t)
	c.Environment = "production"
	if err := Validate(c); err == nil || !strings.Contains(err.Error(), "IDP_PUBLIC_KEY") {
		t.Fatalf("expected IDP key error in production, got %v", err)
	}
}

func TestFillFromEnv_Precedence(t *testing.T) {
	t.Setenv("REBATES_PG_HOST", "db.internal")
	t.Setenv("REBATES_HTTP_PORT", "9090")

	var c App
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	Register(fs, &c)
	// cli flag beats env
	if err := fs.Parse([]string{"-http-port", "7070"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	FillFromEnv(fs, "REBATES_", nil)

	if c.PGHost != "db.internal" {
		t.Errorf("env should fill pg-host, got %q", c.PGHost)
	}
	if c.HTTPPort != 7070 {
		t.Errorf("cli flag should override env, got %d", c.HTTPPort)
	}
}

func TestFillFromEnv_InvalidValueKeepsDefault(t *testing.T) {
	t.Setenv("REBATES_HTTP_PORT", "not-a-port")

	var c App
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	FillFromEnv(fs, "REBATES_", nil)

	if c.HTTPPort != 8080 {
		t.Errorf("invalid env should keep default, got %d", c.HTTPPort)
	}
}

func TestCORSOriginList(t *testing.T) {
	var c App
	if got := c.CORSOriginList(); len(got) != 1 || got[0] != "*" {
		t.Errorf("empty origins should wildcard, got %v", got)
	}
	c.CORSOrigins = "https://a.example.com, https://b.example.com ,"
	got := c.CORSOriginList()
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Errorf("unexpected origin list %v", got)
	}
}
