package hashio

import (
	"bytes"
	"strings"
	"testing"
)

func TestReaderComputesKnownDigests(t *testing.T) {
	data := "hello, wolfpack"
	r := NewReader(strings.NewReader(data), MD5, SHA1, SHA256)
	if _, err := bytes.NewBuffer(nil).ReadFrom(r); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}

	if got := r.Size(); got != int64(len(data)) {
		t.Errorf("Size() = %d, want %d", got, len(data))
	}

	md5Digest := r.Digest(MD5)
	if md5Digest.Hex() == "" {
		t.Errorf("empty md5 digest")
	}
	sha256Digest := r.Digest(SHA256)
	if sha256Digest.Hex() == md5Digest.Hex() {
		t.Errorf("sha256 and md5 digests should differ")
	}
}

func TestDigestEqualConstantTime(t *testing.T) {
	a := Digest{Algorithm: SHA256, Sum: []byte{1, 2, 3}}
	b := Digest{Algorithm: SHA256, Sum: []byte{1, 2, 3}}
	c := Digest{Algorithm: SHA256, Sum: []byte{1, 2, 4}}

	if !a.Equal(b) {
		t.Errorf("expected equal digests to compare equal")
	}
	if a.Equal(c) {
		t.Errorf("expected differing digests to compare unequal")
	}
}

func TestSumHelper(t *testing.T) {
	d, err := Sum(strings.NewReader("abc"), SHA256)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"[:64]
	if d.Hex() != want {
		t.Errorf("Hex() = %s, want %s", d.Hex(), want)
	}
}

func TestParseHexRoundTrip(t *testing.T) {
	d, err := Sum(strings.NewReader("xyz"), MD5)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	parsed, err := ParseHex(MD5, d.Hex())
	if err != nil {
		t.Fatalf("ParseHex: %v", err)
	}
	if !d.Equal(parsed) {
		t.Errorf("round-tripped digest does not match original")
	}
}
