package auth

import (
	"testing"
	"time"
)

func TestIssueParseRoundTrip(t *testing.T) {
	signed, exp, err := Issue("u1", RoleTrainee, "rollcall", "secret", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatal("expiry not in the future")
	}

	claims, err := Parse(signed, "secret", "rollcall")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "u1" || claims.Role != RoleTrainee {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	signed, _, err := Issue("u1", RoleTrainee, "rollcall", "secret", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := Parse(signed, "other", "rollcall"); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	signed, _, err := Issue("u1", RoleAdmin, "someone-else", "secret", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := Parse(signed, "secret", "rollcall"); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}
