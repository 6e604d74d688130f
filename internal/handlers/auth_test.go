package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/threadlane/threadlane/internal/auth"
	"github.com/threadlane/threadlane/internal/models"
)

const testAuthSecret = "0123456789abcdef0123456789abcdef"

func testHandlers(t *testing.T) *Handlers {
	t.Helper()

	verifier, err := auth.NewVerifier(testAuthSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return &Handlers{
		verifier: verifier,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func issueToken(t *testing.T, h *Handlers, actor models.Actor) string {
	t.Helper()

	token, err := h.verifier.IssueToken(actor, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return token
}

func TestRequireAuth_ResolvesActor(t *testing.T) {
	t.Parallel()

	h := testHandlers(t)
	token := issueToken(t, h, models.Actor{ID: "cust-1", Role: models.RoleCustomer})

	var seen models.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = actorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	h.RequireAuth(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if seen.ID != "cust-1" || seen.Role != models.RoleCustomer {
		t.Fatalf("unexpected actor in context: %+v", seen)
	}
}

func TestRequireAuth_RejectsMissingToken(t *testing.T) {
	t.Parallel()

	h := testHandlers(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler should not run without a token")
	})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()

	h.RequireAuth(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Kind != "unauthorized" {
		t.Fatalf("expected kind unauthorized, got %q", body.Error.Kind)
	}
}

func TestRequireAuth_RejectsGarbageToken(t *testing.T) {
	t.Parallel()

	h := testHandlers(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler should not run with an invalid token")
	})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()

	h.RequireAuth(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestRequireAuth_RejectsTokenSignedWithOtherSecret(t *testing.T) {
	t.Parallel()

	h := testHandlers(t)

	other, err := auth.NewVerifier("ffffffffffffffffffffffffffffffff")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	token, err := other.IssueToken(models.Actor{ID: "cust-1", Role: models.RoleCustomer}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler should not run with a foreign token")
	})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	h.RequireAuth(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestRequireAdmin_RejectsCustomer(t *testing.T) {
	t.Parallel()

	h := testHandlers(t)
	token := issueToken(t, h, models.Actor{ID: "cust-1", Role: models.RoleCustomer})

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler should not run for a customer")
	})

	req := httptest.NewRequest(http.MethodGet, "/refunds", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	h.RequireAuth(h.RequireAdmin(next)).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestRequireAdmin_AllowsAdmin(t *testing.T) {
	t.Parallel()

	h := testHandlers(t)
	token := issueToken(t, h, models.Actor{ID: "admin-1", Role: models.RoleAdmin})

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/refunds", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	h.RequireAuth(h.RequireAdmin(next)).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "standard", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "extra whitespace", header: "  Bearer   abc  ", want: "abc"},
		{name: "missing", header: "", want: ""},
		{name: "wrong scheme", header: "Basic abc", want: ""},
		{name: "scheme only", header: "Bearer", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := bearerToken(req); got != tt.want {
				t.Fatalf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
