package auth

import "testing"

func TestVerifyHeaderDevEnvironmentBypassesVerification(t *testing.T) {
	t.Setenv("LOCALSTORE_ENV", "DEV")
	v := NewVerifier(Config{OktaDomain: "example.okta.com", OktaClientID: "client"})

	userID, err := v.VerifyHeader("")
	if err != nil {
		t.Fatalf("VerifyHeader: %v", err)
	}
	if userID != "dev-user" {
		t.Fatalf("userID = %q, want dev-user", userID)
	}
}

func TestVerifyHeaderRejectsMissingBearerPrefix(t *testing.T) {
	t.Setenv("LOCALSTORE_ENV", "")
	v := NewVerifier(Config{OktaDomain: "example.okta.com", OktaClientID: "client"})

	if _, err := v.VerifyHeader("not-a-bearer-token"); err == nil {
		t.Fatalf("expected an error for a non-bearer header")
	}
}

func TestVerifyHeaderQAEnvironmentAcceptsConfiguredToken(t *testing.T) {
	t.Setenv("LOCALSTORE_ENV", "QA")
	t.Setenv("LOCALSTORE_QA_TOKEN", "qa-secret")
	v := NewVerifier(Config{OktaDomain: "example.okta.com", OktaClientID: "client"})

	userID, err := v.VerifyHeader("Bearer qa-secret")
	if err != nil {
		t.Fatalf("VerifyHeader: %v", err)
	}
	if userID != "qa-user" {
		t.Fatalf("userID = %q, want qa-user", userID)
	}
}
