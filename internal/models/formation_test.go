package models

import (
	"strings"
	"testing"
)

func TestNormalizeInvitationCode(t *testing.T) {
	cases := map[string]string{
		"abcd2345":    "ABCD2345",
		"  AbCd2345 ": "ABCD2345",
		"ABCD2345":    "ABCD2345",
	}
	for in, want := range cases {
		if got := NormalizeInvitationCode(in); got != want {
			t.Errorf("NormalizeInvitationCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateInvitationCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateInvitationCode()
		if err != nil {
			t.Fatalf("GenerateInvitationCode failed: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("expected 8-character code, got %q", code)
		}
		for _, c := range code {
			if !strings.ContainsRune(invitationCodeAlphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
		seen[code] = true
	}
	if len(seen) < 95 {
		t.Errorf("codes collide far too often: %d unique of 100", len(seen))
	}
}

func TestFormationIsEditable(t *testing.T) {
	f := &Formation{Status: FormationPlanned}
	if !f.IsEditable() {
		t.Error("planned formation must be editable")
	}
	for _, status := range []FormationStatus{FormationOngoing, FormationCompleted, FormationCancelled} {
		f.Status = status
		if f.IsEditable() {
			t.Errorf("%s formation must not be editable", status)
		}
	}
}

func TestCertificateID(t *testing.T) {
	if got := CertificateID("u1", "f1"); got != "u1_f1" {
		t.Errorf("unexpected certificate ID: %s", got)
	}
	if CertificateID("u1", "f1") != CertificateID("u1", "f1") {
		t.Error("certificate ID must be deterministic")
	}
}
