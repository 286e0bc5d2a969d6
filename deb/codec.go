package deb

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// codec identifies a compression format carried by an archive member, keyed
// by the magic bytes at the start of its content rather than by filename
// suffix alone — real repositories are not always consistent about naming.
type codec int

const (
	codecNone codec = iota
	codecGzip
	codecXZ
	codecZstd
)

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicXZ   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// sniffCodec inspects up to the first few bytes of peeked to determine which
// compression codec, if any, produced it.
func sniffCodec(peeked []byte) codec {
	switch {
	case bytes.HasPrefix(peeked, magicZstd):
		return codecZstd
	case bytes.HasPrefix(peeked, magicXZ):
		return codecXZ
	case bytes.HasPrefix(peeked, magicGzip):
		return codecGzip
	default:
		return codecNone
	}
}

// decompressingReader wraps r in a bufio.Reader, sniffs its codec from the
// leading bytes, and returns a reader that yields the decompressed stream
// (or the original bytes, for codecNone). The decompressor it opens is never
// closed by this function; the gzip and zstd readers it returns also
// implement io.Closer.
func decompressingReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 16)
	peeked, _ := br.Peek(6)
	switch sniffCodec(peeked) {
	case codecGzip:
		return gzip.NewReader(br)
	case codecXZ:
		return xz.NewReader(br)
	case codecZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("deb: opening zstd stream: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return br, nil
	}
}

// DecompressingReader is the exported form of decompressingReader, for
// callers outside this package that need to read a possibly-compressed
// stream (a fetched Packages or Contents index) without knowing its codec
// ahead of time.
func DecompressingReader(r io.Reader) (io.Reader, error) {
	return decompressingReader(r)
}

// suffix maps a codec to the filename suffix conventionally used for
// it in Debian archive member names (control.tar.xz, Packages.zst, ...).
func (c codec) suffix() string {
	switch c {
	case codecGzip:
		return ".gz"
	case codecXZ:
		return ".xz"
	case codecZstd:
		return ".zst"
	default:
		return ""
	}
}
