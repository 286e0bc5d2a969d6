package pull

import (
	"bufio"
	"context"
	"hash/fnv"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wolfpack-pm/wolfpack/internal/searchindex"
	"github.com/wolfpack-pm/wolfpack/internal/store"
)

// parseContentsLine splits one Contents-index line into the file path and
// the package names that claim it. A Contents file opens with free-text
// header lines before the "path  section/package[,section/package...]"
// table begins, distinguished here by the last whitespace-separated field
// containing a "/" (a section/package pair never appears in the header). A
// file can be listed as belonging to more than one package (diversions,
// alternatives), comma-separated.
func parseContentsLine(line string) (path string, packages []string, ok bool) {
	trimmed := strings.TrimRight(line, "\r\n")
	fields := strings.Fields(trimmed)
	if len(fields) < 2 {
		return "", nil, false
	}
	last := fields[len(fields)-1]
	if !strings.Contains(last, "/") {
		return "", nil, false
	}
	pathPart := strings.Join(fields[:len(fields)-1], " ")
	if pathPart == "" {
		return "", nil, false
	}

	for _, qualifier := range strings.Split(last, ",") {
		if i := strings.LastIndex(qualifier, "/"); i >= 0 {
			name := qualifier[i+1:]
			if name != "" {
				packages = append(packages, name)
			}
		}
	}
	if len(packages) == 0 {
		return "", nil, false
	}
	return "/" + strings.TrimPrefix(pathPart, "/"), packages, true
}

// contentsToFileDocs parses a decompressed Contents-index body into the file
// documents the files index stores. A document's PackageID is the owning
// package's store id, resolved by name within repoID; its ID is a synthetic
// key derived from the (path, package) pair, since bleve treats a
// document's id as a unique storage key and one package legitimately owns
// many files. A path whose package name isn't indexed yet (stale Contents
// file, or a component this pull skipped) is silently dropped, same as the
// original's "no package id, skip this file" behavior.
func contentsToFileDocs(ctx context.Context, st *store.Store, log *zap.SugaredLogger, repoID int64, r io.Reader) ([]searchindex.FileDoc, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	packageIDs := make(map[string]int64)
	var docs []searchindex.FileDoc
	for scanner.Scan() {
		path, packages, ok := parseContentsLine(scanner.Text())
		if !ok {
			continue
		}
		for _, name := range packages {
			packageID, cached := packageIDs[name]
			if !cached {
				var found bool
				var err error
				packageID, found, err = st.FindPackageIDByName(ctx, repoID, name)
				if err != nil {
					return nil, err
				}
				if !found {
					log.Debugw("pull: contents entry names an unindexed package", "package", name, "path", path)
					continue
				}
				packageIDs[name] = packageID
			}

			doc := searchindex.FileDoc{ID: fileDocID(name, path), PackageID: packageID, Path: path}
			if searchindex.IsCommandPath(path) {
				doc.Command = filepath.Base(path)
			}
			docs = append(docs, doc)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// fileDocID derives a stable file-document id from a (package, path) pair so
// repeated pulls over an unchanged archive produce the same document key
// instead of growing the index with duplicates.
func fileDocID(packageName, path string) int64 {
	h := fnv.New64a()
	h.Write([]byte(packageName))
	h.Write([]byte{0})
	h.Write([]byte(path))
	return int64(h.Sum64())
}
