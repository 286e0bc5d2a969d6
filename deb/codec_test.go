package deb

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"
)

func TestSniffCodecGzip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte("hello"))
	gw.Close()

	if c := sniffCodec(buf.Bytes()[:6]); c != codecGzip {
		t.Errorf("sniffCodec = %v, want codecGzip", c)
	}
}

func TestSniffCodecNone(t *testing.T) {
	if c := sniffCodec([]byte("plain text")); c != codecNone {
		t.Errorf("sniffCodec = %v, want codecNone", c)
	}
}

func TestDecompressingReaderGzip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte("payload contents"))
	gw.Close()

	dr, err := decompressingReader(&buf)
	if err != nil {
		t.Fatalf("decompressingReader: %v", err)
	}
	got, err := io.ReadAll(dr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "payload contents" {
		t.Errorf("got %q, want %q", got, "payload contents")
	}
}

func TestDecompressingReaderPassthrough(t *testing.T) {
	dr, err := decompressingReader(bytes.NewReader([]byte("uncompressed")))
	if err != nil {
		t.Fatalf("decompressingReader: %v", err)
	}
	got, err := io.ReadAll(dr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "uncompressed" {
		t.Errorf("got %q, want %q", got, "uncompressed")
	}
}
