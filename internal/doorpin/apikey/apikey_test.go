package apikey_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/doorpin/server/internal/doorpin/apikey"
)

func TestGenerateHashVerify(t *testing.T) {
	key, err := apikey.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if len(key) < apikey.MinLen {
		t.Fatalf("generated key too short: %d", len(key))
	}

	h, err := apikey.Hash(key)
	if err != nil {
		t.Fatal(err)
	}
	if !apikey.Verify(key, h) {
		t.Error("key should verify against its own hash")
	}
	flip := "A"
	if strings.HasSuffix(key, "A") {
		flip = "B"
	}
	if apikey.Verify(key[:len(key)-1]+flip, h) {
		t.Error("altered key verified")
	}
}

func TestSuffix(t *testing.T) {
	got, err := apikey.Suffix("0123456789abcdefWXYZ")
	if err != nil || got != "WXYZ" {
		t.Fatalf("Suffix = %q, %v", got, err)
	}
	if _, err := apikey.Suffix("short"); !errors.Is(err, apikey.ErrMalformed) {
		t.Errorf("short key: %v", err)
	}
	if _, err := apikey.Suffix(strings.Repeat("k", 73)); !errors.Is(err, apikey.ErrMalformed) {
		t.Errorf("long key: %v", err)
	}
}

func TestVerify_RejectsMalformed(t *testing.T) {
	h, err := apikey.Hash("0123456789abcdef")
	if err != nil {
		t.Fatal(err)
	}
	if apikey.Verify("0123", h) {
		t.Error("short key verified")
	}
	if apikey.Verify("0123456789abcdef", "not-a-bcrypt-hash") {
		t.Error("garbage hash verified")
	}
}
