package deb

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/blakesmith/ar"
)

// ArchiveInfo holds the metadata a repository's Release file carries about
// itself.
//
// Reference: https://wiki.debian.org/DebianRepository/Format#Release_file
type ArchiveInfo struct {
	// Origin identifies the repository origin (e.g., "Debian", "MyOrg").
	Origin string

	// Label is a short label for the repository.
	Label string

	// Suite specifies the suite name (e.g., "stable", "testing").
	Suite string

	// Version is the version of the release (e.g., "12.0").
	Version string

	// Codename specifies the release codename (e.g., "bookworm", "jammy").
	Codename string

	// Date is the Release file's publication timestamp, RFC1123Z-formatted.
	Date string

	// Architectures is a space-separated list of architectures supported by this repository.
	Architectures string

	// Components is a space-separated list of repository components (e.g., "main", "contrib").
	Components string

	// Description provides a description of the repository.
	Description string

	// ValidUntil specifies an expiration date for the Release file.
	// Format: RFC1123Z (e.g., "Sat, 01 Jan 2000 00:00:00 UTC").
	ValidUntil string

	// NotAutomatic, if "yes", prevents the repository from being selected by default for upgrades.
	NotAutomatic string

	// ButAutomaticUpgrades, if "yes" (and NotAutomatic is "yes"), allows automatic upgrades for packages already installed.
	ButAutomaticUpgrades string

	// AcquireByHash, if "yes", indicates support for acquiring indices by hash.
	AcquireByHash string
}

// countingWriter wraps an io.Writer and counts the bytes written.
// It is typically used to calculate the size of a file or archive entry
// as it is being written.
type countingWriter struct {
	w io.Writer
	n int64
}

// Write writes p to the underlying io.Writer and increments the byte count.
func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// addBufferToAr writes a named byte slice as a file entry to the AR archive.
// It constructs the AR header with mode 0644 and the current timestamp.
func addBufferToAr(w *ar.Writer, name string, body []byte) error {
	header := &ar.Header{
		Name:    name,
		Size:    int64(len(body)),
		Mode:    0644,
		ModTime: time.Now(),
	}
	if err := w.WriteHeader(header); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// VerifyDetachedSignature checks detachedSig against message under any key in
// armoredKeyring, returning the signing identity on success. It generalizes
// the check Package.VerifySignature runs against a .deb's embedded "_gpg*"
// members to any other detached-signature pair, such as a repository's
// Release/Release.gpg files.
func VerifyDetachedSignature(armoredKeyring string, message, detachedSig []byte) (string, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKeyring))
	if err != nil {
		return "", fmt.Errorf("reading keyring: %w", err)
	}
	signer, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(message), bytes.NewReader(detachedSig), nil)
	if err != nil {
		return "", fmt.Errorf("deb: signature verification failed: %w", err)
	}
	for id := range signer.Identities {
		return id, nil
	}
	return signer.PrimaryKey.KeyIdString(), nil
}

// parseControlFile parses the content of a Debian control file and populates the Metadata struct.
// It handles standard fields mapping to struct fields and puts unknown fields into ExtraFields.
// It also handles multiline values (folded fields).
func parseControlFile(content string, m *Metadata) error {
	var currentKey string
	var currentValue strings.Builder

	flush := func() {
		if currentKey != "" {
			val := strings.TrimSpace(currentValue.String())
			switch ControlField(currentKey) {
			case FieldPackage:
				m.Package = val
			case FieldVersion:
				m.Version = val
			case FieldArchitecture:
				m.Architecture = val
			case FieldMaintainer:
				m.Maintainer = val
			case FieldDescription:
				m.Description = val
			case FieldSection:
				m.Section = val
			case FieldPriority:
				m.Priority = val
			case FieldHomepage:
				m.Homepage = val
			case FieldEssential:
				m.Essential = (val == "yes")
			case FieldDepends:
				m.Depends = splitList(val)
			case FieldPreDepends:
				m.PreDepends = splitList(val)
			case FieldRecommends:
				m.Recommends = splitList(val)
			case FieldSuggests:
				m.Suggests = splitList(val)
			case FieldEnhances:
				m.Enhances = splitList(val)
			case FieldConflicts:
				m.Conflicts = splitList(val)
			case FieldBreaks:
				m.Breaks = splitList(val)
			case FieldReplaces:
				m.Replaces = splitList(val)
			case FieldProvides:
				m.Provides = splitList(val)
			case FieldBuiltUsing:
				m.BuiltUsing = val
			case FieldSource:
				m.Source = val
			case FieldInstalledSize:
				//ignore installed size when reading

			default:
				m.ExtraFields[currentKey] = val
			}
		}
	}

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			currentValue.WriteString("\n" + line)
		} else if strings.Contains(line, ":") {
			flush()
			parts := strings.SplitN(line, ":", 2)
			currentKey = parts[0]
			currentValue.Reset()
			currentValue.WriteString(strings.TrimSpace(parts[1]))
		}
	}
	flush()
	return nil
}

// splitList splits a comma-separated string into a slice of strings, trimming whitespace from each element.
// It returns nil if the input string is empty.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var res []string
	for _, p := range parts {
		res = append(res, strings.TrimSpace(p))
	}
	return res
}

// parseReleaseFile parses the content of a Release file and populates the ArchiveInfo struct.
// It maps standard Release fields to the struct fields.
func parseReleaseFile(content string, info *ArchiveInfo) error {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, " ") || line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])

		switch ReleaseField(key) {
		case RelOrigin:
			info.Origin = val
		case RelLabel:
			info.Label = val
		case RelSuite:
			info.Suite = val
		case RelVersion:
			info.Version = val
		case RelCodename:
			info.Codename = val
		case RelDate:
			info.Date = val
		case RelArchitectures:
			info.Architectures = val
		case RelComponents:
			info.Components = val
		case RelDescription:
			info.Description = val
		case RelValidUntil:
			info.ValidUntil = val
		case RelNotAutomatic:
			info.NotAutomatic = val
		case RelButAutomaticUpgrades:
			info.ButAutomaticUpgrades = val
		case RelAcquireByHash:
			info.AcquireByHash = val
		}
	}
	return nil
}

// ReleaseEntry is one line of a Release file's SHA256 manifest: a listed
// file's repo-relative path, size, and expected digest.
type ReleaseEntry struct {
	Path string
	Size int64
	Hash string
}

// ParseReleaseManifest parses a full Release file, returning both its
// top-level fields (via parseReleaseFile) and its SHA256 manifest — the list
// of every index file the release names, with the size and digest a fetch
// should verify it against. Fetched index files always go through this path
// rather than through their own unauthenticated Content-Length/ETag headers.
func ParseReleaseManifest(r io.Reader) (ArchiveInfo, []ReleaseEntry, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return ArchiveInfo{}, nil, err
	}

	var info ArchiveInfo
	if err := parseReleaseFile(string(content), &info); err != nil {
		return ArchiveInfo{}, nil, err
	}

	var entries []ReleaseEntry
	inSHA256 := false
	for _, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "SHA256:":
			inSHA256 = true
		case !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t"):
			inSHA256 = false
		case inSHA256:
			fields := strings.Fields(trimmed)
			if len(fields) != 3 {
				continue
			}
			size, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				continue
			}
			entries = append(entries, ReleaseEntry{Hash: fields[0], Size: size, Path: fields[2]})
		}
	}
	return info, entries, nil
}
