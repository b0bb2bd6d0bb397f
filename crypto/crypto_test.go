package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestSealOpenRoundTrip(t *testing.T) {
	c, err := New(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	for _, secret := range []string{"hunter2", "pässwörd with ütf-8", strings.Repeat("x", 4096)} {
		sealed, err := c.SealString(secret)
		if err != nil {
			t.Fatal(err)
		}
		if sealed == secret {
			t.Error("sealed output equals plaintext")
		}
		got, err := c.OpenString(sealed)
		if err != nil {
			t.Fatal(err)
		}
		if got != secret {
			t.Errorf("round trip changed the secret")
		}
	}
}

func TestEmptySecretRoundTrips(t *testing.T) {
	c, err := New(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := c.SealString("")
	if err != nil || sealed != "" {
		t.Errorf("SealString(\"\") = (%q, %v), want (\"\", nil)", sealed, err)
	}
	got, err := c.OpenString("")
	if err != nil || got != "" {
		t.Errorf("OpenString(\"\") = (%q, %v), want (\"\", nil)", got, err)
	}
}

func TestSealIsNonDeterministic(t *testing.T) {
	c, err := New(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	a, _ := c.SealString("secret")
	b, _ := c.SealString("secret")
	if a == b {
		t.Error("two seals of the same secret produced identical ciphertext")
	}
}

func TestTamperedCiphertextRejected(t *testing.T) {
	c, err := New(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := c.SealString("secret")
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	if _, err := c.OpenString(base64.StdEncoding.EncodeToString(raw)); err == nil {
		t.Error("tampered ciphertext opened without error")
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	c, err := New(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range []string{"not base64 at all!!!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		if _, err := c.OpenString(in); err == nil {
			t.Errorf("OpenString(%q) succeeded", in)
		}
	}
}

func TestNewRejectsBadKeys(t *testing.T) {
	cases := []string{
		"",
		"not base64 !!!",
		base64.StdEncoding.EncodeToString([]byte("too short")),
		base64.StdEncoding.EncodeToString(make([]byte, 64)),
	}
	for _, key := range cases {
		if _, err := New(key); err == nil {
			t.Errorf("New(%q) accepted a bad key", key)
		}
	}
}

func TestWrongKeyCannotOpen(t *testing.T) {
	a, err := New(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := a.SealString("secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.OpenString(sealed); err == nil {
		t.Error("a different key opened the ciphertext")
	}
}
