package crypto

import (
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	var raw [20]byte
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr := NewAddress(raw)
	encoded := addr.String()
	if !strings.HasPrefix(encoded, Prefix+"1") {
		t.Fatalf("unexpected encoding: %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bytes() != raw {
		t.Fatalf("round trip mismatch: %x vs %x", decoded.Bytes(), raw)
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	var raw [20]byte
	encoded := NewAddress(raw).String()
	foreign := "cosmos" + strings.TrimPrefix(encoded, Prefix)
	if _, err := DecodeAddress(foreign); err == nil {
		t.Fatal("expected prefix rejection")
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-an-address"); err == nil {
		t.Fatal("expected decode failure")
	}
}
