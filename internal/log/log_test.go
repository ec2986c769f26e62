package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/retailcore/rebates-api/internal/xerrors"
)

func newTestLogger(t *testing.T, lvl slog.Level) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	lg, err := New(Options{
		App:        "rebates-api-test",
		Level:      lvl,
		JsonFormat: true,
		Writer:     &buf,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return lg, &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &rec); err != nil {
		t.Fatalf("unmarshal record: %v\n%s", err, buf.String())
	}
	return rec
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{" warn ", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", 0, false},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("ParseLevel(%q) = %v, %v", c.in, got, err)
		}
		if !c.ok && err == nil {
			t.Errorf("ParseLevel(%q) should fail", c.in)
		}
	}
}

func TestInfo_EmitsAppAndFields(t *testing.T) {
	lg, buf := newTestLogger(t, slog.LevelInfo)
	lg.Info(context.Background(), "agreement created", "agreement_id", 42)

	rec := lastRecord(t, buf)
	if rec["app"] != "rebates-api-test" {
		t.Errorf("app attr missing: %v", rec)
	}
	if rec["msg"] != "agreement created" {
		t.Errorf("msg mismatch: %v", rec["msg"])
	}
	if rec["agreement_id"] != float64(42) {
		t.Errorf("agreement_id mismatch: %v", rec["agreement_id"])
	}
}

func TestDebug_SuppressedBelowLevel(t *testing.T) {
	lg, buf := newTestLogger(t, slog.LevelInfo)
	lg.Debug(context.Background(), "noisy")
	if buf.Len() != 0 {
		t.Fatalf("debug record should be suppressed, got %s", buf.String())
	}
}

func TestError_IncludesStackFromXerrors(t *testing.T) {
	lg, buf := newTestLogger(t, slog.LevelInfo)
	lg.Error(context.Background(), xerrors.New("db down"), "query failed")

	rec := lastRecord(t, buf)
	stack, _ := rec["stack"].(string)
	if stack == "" {
		t.Fatal("expected stack attr on error record")
	}
	if !strings.Contains(stack, "log.TestError_IncludesStackFromXerrors") {
		t.Errorf("stack should include test frame:\n%s", stack)
	}
}

func TestWith_DoesNotMutateParent(t *testing.T) {
	lg, buf := newTestLogger(t, slog.LevelInfo)
	child := lg.With("component", "search")

	lg.Info(context.Background(), "parent")
	parentRec := lastRecord(t, buf)
	if _, ok := parentRec["component"]; ok {
		t.Fatal("parent logger should not carry child attrs")
	}

	buf.Reset()
	child.Info(context.Background(), "child")
	childRec := lastRecord(t, buf)
	if childRec["component"] != "search" {
		t.Fatalf("child attr missing: %v", childRec)
	}
}

func TestFromContext_FallsBackToNop(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil {
		t.Fatal("FromContext should never return nil")
	}
	// must not panic
	l.Info(context.Background(), "ignored")
}

func TestWithContext_RoundTrip(t *testing.T) {
	lg, _ := newTestLogger(t, slog.LevelInfo)
	ctx := WithContext(context.Background(), lg)
	if got := FromContext(ctx); got != lg {
		t.Fatal("FromContext should return the stored logger")
	}
}
