package auth

import (
	"errors"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Sup3r$ecret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "Sup3r$ecret" {
		t.Fatal("password stored in plaintext")
	}
	if err := VerifyPassword(hash, "Sup3r$ecret"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong-password"); err == nil {
		t.Fatal("wrong password accepted")
	}
}

func TestValidatePasswordPolicy(t *testing.T) {
	valid := []string{
		"Sup3r$ecret",
		"Aa1!aaaa",
		"pass Word1", // space counts as the special character
	}
	for _, p := range valid {
		if err := ValidatePasswordPolicy(p); err != nil {
			t.Fatalf("expected %q to pass policy: %v", p, err)
		}
	}

	invalid := []string{
		"Aa1!a",        // too short
		"alllower1!",   // no upper
		"ALLUPPER1!",   // no lower
		"NoDigits!!",   // no digit
		"NoSpecial11",  // no special
		"",
	}
	for _, p := range invalid {
		if err := ValidatePasswordPolicy(p); !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("expected %q to fail policy, got %v", p, err)
		}
	}
}
