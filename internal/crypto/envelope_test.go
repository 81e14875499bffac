package crypto

import "testing"

func testKeys() map[string][]byte {
	return map[string][]byte{
		"k1": []byte("0123456789abcdef0123456789abcdef"),
		"k2": []byte("fedcba9876543210fedcba9876543210"),
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	m, err := NewManager("k1", testKeys())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	raw, err := m.EncryptString("sk-super-secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := m.DecryptString(raw)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != "sk-super-secret" {
		t.Fatalf("expected round trip, got %q", got)
	}
}

func TestDecryptUnknownKeyID(t *testing.T) {
	m1, err := NewManager("k1", map[string][]byte{"k1": testKeys()["k1"]})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	m2, err := NewManager("k2", map[string][]byte{"k2": testKeys()["k2"]})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	raw, err := m2.EncryptString("value")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := m1.DecryptString(raw); err == nil {
		t.Fatalf("expected error for unknown key id")
	}
}

func TestHeadersRoundTrip(t *testing.T) {
	m, err := NewManager("k1", testKeys())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	raw, err := m.EncryptHeaders(map[string]string{"X-Custom-Auth": "token {{api_key}}"})
	if err != nil {
		t.Fatalf("encrypt headers: %v", err)
	}
	got, err := m.DecryptHeaders(raw)
	if err != nil {
		t.Fatalf("decrypt headers: %v", err)
	}
	if got["X-Custom-Auth"] != "token {{api_key}}" {
		t.Fatalf("unexpected headers %#v", got)
	}
}

func TestDecryptHeadersEmpty(t *testing.T) {
	m, err := NewManager("k1", testKeys())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	got, err := m.DecryptHeaders("")
	if err != nil {
		t.Fatalf("decrypt empty headers: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil headers, got %#v", got)
	}
}

func TestReEncryptRotatesKeyID(t *testing.T) {
	old, err := NewManager("k1", testKeys())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	raw, err := old.EncryptString("rotate-me")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	current, err := NewManager("k2", testKeys())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	rotated, err := current.ReEncrypt(raw)
	if err != nil {
		t.Fatalf("re-encrypt: %v", err)
	}

	// The old key alone can no longer open the rotated envelope.
	oldOnly, err := NewManager("k1", map[string][]byte{"k1": testKeys()["k1"]})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := oldOnly.DecryptString(rotated); err == nil {
		t.Fatalf("expected rotated envelope to require new key")
	}

	got, err := current.DecryptString(rotated)
	if err != nil {
		t.Fatalf("decrypt rotated: %v", err)
	}
	if got != "rotate-me" {
		t.Fatalf("expected round trip after rotation, got %q", got)
	}
}

func TestNewManagerRejectsShortKey(t *testing.T) {
	if _, err := NewManager("bad", map[string][]byte{"bad": []byte("short")}); err == nil {
		t.Fatalf("expected error for short key")
	}
}
