// Package hashio provides streaming readers and writers that compute one or
// several cryptographic digests while passing bytes through unmodified.
package hashio

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Algorithm identifies a supported digest.
type Algorithm int

const (
	MD5 Algorithm = iota
	SHA1
	SHA256
	SHA512
)

func (a Algorithm) String() string {
	switch a {
	case MD5:
		return "md5"
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	case SHA512:
		return "sha512"
	default:
		return "unknown"
	}
}

func newHash(a Algorithm) hash.Hash {
	switch a {
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	case SHA512:
		return sha512.New()
	default:
		panic(fmt.Sprintf("hashio: unsupported algorithm %d", a))
	}
}

// Digest is the result of hashing a stream: the algorithm, the raw bytes, and
// the total number of bytes observed.
type Digest struct {
	Algorithm Algorithm
	Sum       []byte
	Size      int64
}

// Hex returns the lowercase hexadecimal textual form of the digest.
func (d Digest) Hex() string { return hex.EncodeToString(d.Sum) }

func (d Digest) String() string { return d.Algorithm.String() + ":" + d.Hex() }

// Equal reports whether two digests hold the same algorithm and bytes,
// comparing the raw bytes in constant time.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && subtle.ConstantTimeCompare(d.Sum, other.Sum) == 1
}

// Reader wraps an io.Reader, updating one or several hashes for every byte
// read. Errors from the underlying reader propagate verbatim; hashing itself
// never fails.
type Reader struct {
	r      io.Reader
	hashes map[Algorithm]hash.Hash
	size   int64
}

// NewReader returns a Reader that hashes everything read through it with
// every algorithm in algos. A composite {MD5, SHA1, SHA256} is expressed by
// passing all three.
func NewReader(r io.Reader, algos ...Algorithm) *Reader {
	hashes := make(map[Algorithm]hash.Hash, len(algos))
	for _, a := range algos {
		hashes[a] = newHash(a)
	}
	return &Reader{r: r, hashes: hashes}
}

func (hr *Reader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.size += int64(n)
		for _, h := range hr.hashes {
			h.Write(p[:n])
		}
	}
	return n, err
}

// Size returns the number of bytes observed so far.
func (hr *Reader) Size() int64 { return hr.size }

// Digest finalizes and returns the digest for algo. Calling Digest does not
// reset the underlying hash; it is meant to be called once the stream has
// been fully consumed.
func (hr *Reader) Digest(algo Algorithm) Digest {
	h, ok := hr.hashes[algo]
	if !ok {
		panic(fmt.Sprintf("hashio: reader was not configured for %s", algo))
	}
	return Digest{Algorithm: algo, Sum: h.Sum(nil), Size: hr.size}
}

// Digests returns every digest the reader was configured to compute.
func (hr *Reader) Digests() []Digest {
	out := make([]Digest, 0, len(hr.hashes))
	for a := range hr.hashes {
		out = append(out, hr.Digest(a))
	}
	return out
}

// Writer is the symmetric counterpart of Reader for the write path (used by
// the fetcher while saving a download, where the body is streamed to disk
// and hashed at the same time).
type Writer struct {
	w      io.Writer
	hashes map[Algorithm]hash.Hash
	size   int64
}

// NewWriter returns a Writer that hashes everything written through it.
func NewWriter(w io.Writer, algos ...Algorithm) *Writer {
	hashes := make(map[Algorithm]hash.Hash, len(algos))
	for _, a := range algos {
		hashes[a] = newHash(a)
	}
	return &Writer{w: w, hashes: hashes}
}

func (hw *Writer) Write(p []byte) (int, error) {
	n, err := hw.w.Write(p)
	if n > 0 {
		hw.size += int64(n)
		for _, h := range hw.hashes {
			h.Write(p[:n])
		}
	}
	return n, err
}

// Size returns the number of bytes written so far.
func (hw *Writer) Size() int64 { return hw.size }

// Digest finalizes and returns the digest for algo.
func (hw *Writer) Digest(algo Algorithm) Digest {
	h, ok := hw.hashes[algo]
	if !ok {
		panic(fmt.Sprintf("hashio: writer was not configured for %s", algo))
	}
	return Digest{Algorithm: algo, Sum: h.Sum(nil), Size: hw.size}
}

// Sum computes a single digest of r in one shot, draining it fully.
func Sum(r io.Reader, algo Algorithm) (Digest, error) {
	hr := NewReader(r, algo)
	if _, err := io.Copy(io.Discard, hr); err != nil {
		return Digest{}, err
	}
	return hr.Digest(algo), nil
}

// ParseHex decodes a hex-encoded digest string for algo.
func ParseHex(algo Algorithm, s string) (Digest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("hashio: invalid hex digest: %w", err)
	}
	return Digest{Algorithm: algo, Sum: b}, nil
}
