package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePool struct{ err error }

func (p fakePool) Ping(context.Context) error { return p.err }

func readyz(t *testing.T, h *Handler) (int, result) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New(Static("pipeline", func() error { return errors.New("down") }))

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !body.OK || body.Status != "ok" {
		t.Errorf("body = %+v", body)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				Static("pipeline", func() error { return nil }),
				Ping("database", fakePool{}, true),
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"pipeline": "ok", "database": "ok"},
		},
		{
			name: "optional failure degrades",
			checkers: []Checker{
				Static("pipeline", func() error { return nil }),
				Ping("database", fakePool{err: errors.New("connection refused")}, true),
			},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantChecks: map[string]string{"pipeline": "ok", "database": "fail"},
		},
		{
			name: "required failure fails",
			checkers: []Checker{
				Static("pipeline", func() error { return errors.New("pipeline: configure stt: model missing") }),
				Ping("database", fakePool{err: errors.New("timeout")}, true),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"pipeline": "fail", "database": "fail"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := readyz(t, New(tt.checkers...))
			if code != tt.wantCode || body.Status != tt.wantStatus {
				t.Errorf("code=%d status=%q, want %d %q", code, body.Status, tt.wantCode, tt.wantStatus)
			}
			if body.OK != (tt.wantCode == http.StatusOK) {
				t.Errorf("ok = %v", body.OK)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name].Status; got != want {
					t.Errorf("%s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ReportsErrorMessage(t *testing.T) {
	_, body := readyz(t, New(Static("pipeline", func() error { return errors.New("no usable stt engine") })))
	if got := body.Checks["pipeline"].Error; got != "no usable stt engine" {
		t.Errorf("error = %q", got)
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	mux := http.NewServeMux()
	New(Static("pipeline", func() error { return nil })).Register(mux)

	for _, path := range []string{"/healthz", "/readyz", "/health"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}
