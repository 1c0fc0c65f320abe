package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) report {
	t.Helper()
	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz_AlwaysOK(t *testing.T) {
	h := New()

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := decodeReport(t, rec); body.Status != "ok" {
		t.Fatalf("status = %q, want ok", body.Status)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
}

func TestReadyz_AllChecksPass(t *testing.T) {
	h := New(
		Checker{Name: "replay_dir", Check: func(context.Context) error { return nil }},
		Checker{Name: "llm", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeReport(t, rec)
	if body.Status != "ok" {
		t.Fatalf("status = %q, want ok", body.Status)
	}
	for _, name := range []string{"replay_dir", "llm"} {
		if body.Checks[name] != "ok" {
			t.Fatalf("%s check = %q, want ok", name, body.Checks[name])
		}
	}
}

func TestReadyz_FailingCheckFlips503(t *testing.T) {
	h := New(
		Checker{Name: "llm", Check: func(context.Context) error {
			return errors.New("required backend missing")
		}},
		Checker{Name: "replay_dir", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	body := decodeReport(t, rec)
	if body.Status != "fail" {
		t.Fatalf("status = %q, want fail", body.Status)
	}
	if body.Checks["llm"] != "fail: required backend missing" {
		t.Fatalf("llm check = %q", body.Checks["llm"])
	}
	if body.Checks["replay_dir"] != "ok" {
		t.Fatalf("replay_dir check = %q, want ok", body.Checks["replay_dir"])
	}
}

func TestReadyz_NoCheckersIsReady(t *testing.T) {
	h := New()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := decodeReport(t, rec); body.Status != "ok" {
		t.Fatalf("status = %q, want ok", body.Status)
	}
}

func TestReadyz_ReportsEveryFailure(t *testing.T) {
	h := New(
		Checker{Name: "replay_dir", Check: func(context.Context) error {
			return errors.New("mkdir: permission denied")
		}},
		Checker{Name: "session", Check: func(context.Context) error {
			return errors.New("safe-paused")
		}},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	body := decodeReport(t, rec)
	if body.Checks["replay_dir"] != "fail: mkdir: permission denied" {
		t.Fatalf("replay_dir check = %q", body.Checks["replay_dir"])
	}
	if body.Checks["session"] != "fail: safe-paused" {
		t.Fatalf("session check = %q", body.Checks["session"])
	}
}

func TestRegister_ServesBothRoutes(t *testing.T) {
	h := New(
		Checker{Name: "session", Check: func(context.Context) error { return nil }},
	)

	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(
		Checker{Name: "slow", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
