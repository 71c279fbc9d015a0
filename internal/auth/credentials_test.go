package auth

import (
	"errors"
	"testing"
)

func TestStoreRegisterAndVerify(t *testing.T) {
	store := NewStore()
	if err := store.Register("pilot-7", "1234"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := store.Verify("pilot-7", "1234"); err != nil {
		t.Fatalf("Verify returned error for correct pin: %v", err)
	}
	if err := store.Verify("pilot-7", "9999"); !errors.Is(err, ErrBadPIN) {
		t.Fatalf("expected ErrBadPIN, got %v", err)
	}
}

func TestStoreRegisterRejectsDuplicateUsername(t *testing.T) {
	store := NewStore()
	if err := store.Register("pilot-7", "1234"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := store.Register("pilot-7", "5678"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestStoreRegisterRejectsMalformedPIN(t *testing.T) {
	store := NewStore()
	for _, pin := range []string{"", "123", "1234567", "abcd"} {
		if err := store.Register("pilot-7", pin); !errors.Is(err, ErrBadPIN) {
			t.Fatalf("pin %q: expected ErrBadPIN, got %v", pin, err)
		}
	}
}

func TestStoreVerifyUnknownUser(t *testing.T) {
	store := NewStore()
	if err := store.Verify("ghost", "1234"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestStoreSetPIN(t *testing.T) {
	store := NewStore()
	if err := store.Register("pilot-7", "1234"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := store.SetPIN("pilot-7", "4321"); err != nil {
		t.Fatalf("SetPIN: %v", err)
	}
	if err := store.Verify("pilot-7", "1234"); !errors.Is(err, ErrBadPIN) {
		t.Fatalf("expected old pin to be rejected, got %v", err)
	}
	if err := store.Verify("pilot-7", "4321"); err != nil {
		t.Fatalf("expected new pin to verify, got %v", err)
	}
}

func TestStoreSetPINRequiresExistingUser(t *testing.T) {
	store := NewStore()
	if err := store.SetPIN("ghost", "1234"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestStoreExists(t *testing.T) {
	store := NewStore()
	if store.Exists("pilot-7") {
		t.Fatal("expected Exists to be false before registration")
	}
	if err := store.Register("pilot-7", "1234"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !store.Exists("pilot-7") {
		t.Fatal("expected Exists to be true after registration")
	}
}

func TestStoreTwoRegistrationsProduceDifferentDigests(t *testing.T) {
	store := NewStore()
	if err := store.Register("alpha", "1234"); err != nil {
		t.Fatalf("Register alpha: %v", err)
	}
	if err := store.Register("bravo", "1234"); err != nil {
		t.Fatalf("Register bravo: %v", err)
	}
	a := store.records["alpha"]
	b := store.records["bravo"]
	if string(a.digest) == string(b.digest) {
		t.Fatal("expected independent salts to produce different digests for the same pin")
	}
}
