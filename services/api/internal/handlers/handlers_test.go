package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/tutorbase/tutorbase/services/api/internal/model"
)

func TestRoleAllowed(t *testing.T) {
	if !roleAllowed(model.RoleAdmin, []string{model.RoleAdmin, model.RoleTutor}) {
		t.Fatal("admin should pass an admin gate")
	}
	if roleAllowed(model.RoleStudent, []string{model.RoleAdmin}) {
		t.Fatal("student must not pass an admin gate")
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{model.RoleAdmin, model.RoleTutor, model.RoleStudent, model.RoleParent} {
		if !validRole(role) {
			t.Fatalf("%s should be a valid role", role)
		}
	}
	if validRole("") || validRole("owner") {
		t.Fatal("unknown roles must be rejected")
	}
}

func TestValidLeadStatus(t *testing.T) {
	if !validLeadStatus(model.LeadConverted) {
		t.Fatal("converted is a valid lead status")
	}
	if validLeadStatus("archived") {
		t.Fatal("archived is not a lead status")
	}
}

func TestParseRange(t *testing.T) {
	r := httptest.NewRequest("GET", "/sessions?from=2024-01-01&to=2024-01-31", nil)
	w := httptest.NewRecorder()
	from, to, ok := parseRange(w, r)
	if !ok {
		t.Fatalf("valid range rejected: %s", w.Body.String())
	}
	if from.Format("2006-01-02") != "2024-01-01" || to.Format("2006-01-02") != "2024-01-31" {
		t.Fatalf("unexpected range %v..%v", from, to)
	}

	r = httptest.NewRequest("GET", "/sessions?from=2024-02-01&to=2024-01-01", nil)
	w = httptest.NewRecorder()
	if _, _, ok := parseRange(w, r); ok {
		t.Fatal("inverted range must be rejected")
	}

	r = httptest.NewRequest("GET", "/sessions?from=01/02/2024", nil)
	w = httptest.NewRecorder()
	if _, _, ok := parseRange(w, r); ok {
		t.Fatal("non-ISO date must be rejected")
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, 201, map[string]string{"id": "x"})
	if w.Code != 201 {
		t.Fatalf("want 201, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("want application/json, got %q", ct)
	}
	if w.Body.String() != `{"id":"x"}` {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}
