package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func guardedProbe(g *Guard) (http.Handler, *bool) {
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	return g.Middleware(next), &reached
}

func TestGuardAllowsValidToken(t *testing.T) {
	handler, reached := guardedProbe(NewGuard("s3cret"))

	req := httptest.NewRequest("GET", "/api/v1/notes", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 || !*reached {
		t.Fatalf("status = %d, reached = %v", rec.Code, *reached)
	}
}

func TestGuardAcceptsLowercaseScheme(t *testing.T) {
	handler, reached := guardedProbe(NewGuard("s3cret"))

	req := httptest.NewRequest("GET", "/api/v1/notes", nil)
	req.Header.Set("Authorization", "bearer s3cret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 || !*reached {
		t.Fatalf("status = %d, reached = %v", rec.Code, *reached)
	}
}

func TestGuardRejectsMissingToken(t *testing.T) {
	handler, reached := guardedProbe(NewGuard("s3cret"))

	req := httptest.NewRequest("GET", "/api/v1/notes", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 401 {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if *reached {
		t.Fatal("handler must not run without a token")
	}
}

func TestGuardRejectsWrongToken(t *testing.T) {
	handler, reached := guardedProbe(NewGuard("s3cret"))

	req := httptest.NewRequest("GET", "/api/v1/notes", nil)
	req.Header.Set("Authorization", "Bearer guess")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 401 || *reached {
		t.Fatalf("status = %d, reached = %v", rec.Code, *reached)
	}
}

func TestGuardDisabledRefusesEverything(t *testing.T) {
	handler, reached := guardedProbe(NewGuard(""))

	req := httptest.NewRequest("GET", "/api/v1/notes", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 503 || *reached {
		t.Fatalf("status = %d, reached = %v", rec.Code, *reached)
	}
	if NewGuard("  ").Enabled() {
		t.Fatal("whitespace token must not enable the guard")
	}
}
