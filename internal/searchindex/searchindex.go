// Package searchindex maintains the two on-disk Bleve indexes a pull
// adds documents to and a search query reads from: one over package metadata
// (name/description/homepage, language-stemmed), one over extracted file
// paths (a plain path field plus a command field tokenized with a
// character n-gram analyzer so `wolfpack search --by command` can match a
// substring of a short binary name).
package searchindex

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// PackageDoc is one package-index document.
type PackageDoc struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Homepage    string `json:"homepage"`
}

// FileDoc is one file-index document. ID is a synthetic id unique to this
// path, the bleve document key; PackageID is the owning package's store id,
// a stored (not indexed) field a search reads back to join a hit to a
// package row, since one package id can own many files and bleve's document
// id must be unique per document. Command is populated by the caller only
// when the file's parent directory is bin or sbin (see IsCommandPath), left
// empty otherwise.
type FileDoc struct {
	ID        int64  `json:"id"`
	PackageID int64  `json:"package_id"`
	Path      string `json:"path"`
	Command   string `json:"command"`
}

// IsCommandPath reports whether path's parent directory is named bin or
// sbin, the rule that decides whether a file gets a command-index entry.
func IsCommandPath(path string) bool {
	parent := filepath.Base(filepath.Dir(path))
	return parent == "bin" || parent == "sbin"
}

// Indexes bundles the package and file indexes; its mutex serializes
// ResetForPull and Close.
type Indexes struct {
	dir      string
	packages bleve.Index
	files    bleve.Index
	mu       sync.Mutex
}

const (
	packagesDirName = "packages.bleve"
	filesDirName    = "files.bleve"
)

// Open opens (or creates, on first run) the two indexes rooted at dir.
func Open(dir string) (*Indexes, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("searchindex: %w", err)
	}
	pkgIdx, err := openOrCreate(filepath.Join(dir, packagesDirName), packageMapping())
	if err != nil {
		return nil, fmt.Errorf("searchindex: opening package index: %w", err)
	}
	fileIdx, err := openOrCreate(filepath.Join(dir, filesDirName), fileMapping())
	if err != nil {
		pkgIdx.Close()
		return nil, fmt.Errorf("searchindex: opening file index: %w", err)
	}
	return &Indexes{dir: dir, packages: pkgIdx, files: fileIdx}, nil
}

func openOrCreate(path string, m mapping.IndexMapping) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return idx, nil
	}
	return bleve.New(path, m)
}

// Close releases both underlying indexes.
func (idx *Indexes) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	pkgErr := idx.packages.Close()
	fileErr := idx.files.Close()
	if pkgErr != nil {
		return pkgErr
	}
	return fileErr
}

// ResetForPull deletes every document from both indexes and commits the
// empty state. Bleve has no bulk-delete primitive, so this recreates each
// index's on-disk directory from scratch. Orchestrator.Pull does not call
// it: documents indexed by one pull stay in the indexes through later pulls.
func (idx *Indexes) ResetForPull() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.packages.Close(); err != nil {
		return fmt.Errorf("searchindex: closing package index: %w", err)
	}
	pkgPath := filepath.Join(idx.dir, packagesDirName)
	if err := os.RemoveAll(pkgPath); err != nil {
		return fmt.Errorf("searchindex: clearing package index: %w", err)
	}
	pkgIdx, err := bleve.New(pkgPath, packageMapping())
	if err != nil {
		return fmt.Errorf("searchindex: recreating package index: %w", err)
	}
	idx.packages = pkgIdx

	if err := idx.files.Close(); err != nil {
		return fmt.Errorf("searchindex: closing file index: %w", err)
	}
	filePath := filepath.Join(idx.dir, filesDirName)
	if err := os.RemoveAll(filePath); err != nil {
		return fmt.Errorf("searchindex: clearing file index: %w", err)
	}
	fileIdx, err := bleve.New(filePath, fileMapping())
	if err != nil {
		return fmt.Errorf("searchindex: recreating file index: %w", err)
	}
	idx.files = fileIdx
	return nil
}

// IndexPackages adds docs to the package index as a single batch, the
// commit granularity a pull worker uses at each component boundary.
func (idx *Indexes) IndexPackages(docs []PackageDoc) error {
	batch := idx.packages.NewBatch()
	for _, d := range docs {
		if err := batch.Index(docID(d.ID), d); err != nil {
			return fmt.Errorf("searchindex: %w", err)
		}
	}
	return idx.packages.Batch(batch)
}

// IndexFiles adds docs to the file index as a single batch.
func (idx *Indexes) IndexFiles(docs []FileDoc) error {
	batch := idx.files.NewBatch()
	for _, d := range docs {
		if err := batch.Index(docID(d.ID), d); err != nil {
			return fmt.Errorf("searchindex: %w", err)
		}
	}
	return idx.files.Batch(batch)
}

func docID(id int64) string {
	return fmt.Sprintf("%d", id)
}

// SearchPackages runs a keyword query across name/description/homepage and
// returns up to limit matching package ids, highest score first.
func (idx *Indexes) SearchPackages(text string, limit int) ([]int64, error) {
	q := bleve.NewDisjunctionQuery(
		fieldQuery("name", text),
		fieldQuery("description", text),
		fieldQuery("homepage", text),
	)
	return runSearch(idx.packages, q, limit)
}

// FileMatch is one file-index hit, resolved back to the owning package.
// Path is the specific matching file; a package with several matching files
// under one query surfaces once, carrying the first (highest-scoring) match.
type FileMatch struct {
	PackageID int64
	Path      string
}

// SearchFilesByPath runs a path query and returns up to limit matches,
// deduplicated by package (several files can belong to one package).
func (idx *Indexes) SearchFilesByPath(text string, limit int) ([]FileMatch, error) {
	return runFileSearch(idx.files, fieldQuery("path", text), limit)
}

// SearchFilesByCommand runs a command query (n-gram substring match) and
// returns up to limit matches, deduplicated the same way.
func (idx *Indexes) SearchFilesByCommand(text string, limit int) ([]FileMatch, error) {
	return runFileSearch(idx.files, fieldQuery("command", text), limit)
}

func fieldQuery(field, text string) bleve.Query {
	return bleve.NewQueryStringQuery(field + ":" + text)
}

func runSearch(idx bleve.Index, q bleve.Query, limit int) ([]int64, error) {
	if limit <= 0 || limit > 10000 {
		limit = 10000
	}
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	result, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searchindex: %w", err)
	}

	seen := make(map[string]bool, len(result.Hits))
	ids := make([]int64, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if seen[hit.ID] {
			continue
		}
		seen[hit.ID] = true
		var id int64
		if _, err := fmt.Sscanf(hit.ID, "%d", &id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// runFileSearch is runSearch's counterpart for the file index: the id a
// caller needs is the stored package_id field, not the document's own key,
// since one package id is deliberately spread across many documents. The
// matching path travels back alongside it, stored on the same document.
func runFileSearch(idx bleve.Index, q bleve.Query, limit int) ([]FileMatch, error) {
	if limit <= 0 || limit > 10000 {
		limit = 10000
	}
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"package_id", "path"}
	result, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searchindex: %w", err)
	}

	seen := make(map[int64]bool, len(result.Hits))
	var matches []FileMatch
	for _, hit := range result.Hits {
		raw, ok := hit.Fields["package_id"]
		if !ok {
			continue
		}
		f, ok := raw.(float64)
		if !ok {
			continue
		}
		id := int64(f)
		if seen[id] {
			continue
		}
		seen[id] = true
		path, _ := hit.Fields["path"].(string)
		matches = append(matches, FileMatch{PackageID: id, Path: path})
	}
	return matches, nil
}

func packageMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = "en"

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("name", text)
	doc.AddFieldMappingsAt("description", text)
	doc.AddFieldMappingsAt("homepage", text)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = "en"
	return im
}

func fileMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomTokenFilter("command_ngram_filter", map[string]interface{}{
		"type": "ngram",
		"min":  2.0,
		"max":  3.0,
	}); err != nil {
		panic(fmt.Sprintf("searchindex: registering ngram filter: %v", err))
	}
	if err := im.AddCustomAnalyzer("command_ngram", map[string]interface{}{
		"type":          "custom",
		"tokenizer":     "unicode",
		"token_filters": []string{"to_lower", "command_ngram_filter"},
	}); err != nil {
		panic(fmt.Sprintf("searchindex: registering ngram analyzer: %v", err))
	}

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = "keyword"
	pathField.Store = true

	commandField := bleve.NewTextFieldMapping()
	commandField.Analyzer = "command_ngram"

	packageIDField := bleve.NewNumericFieldMapping()
	packageIDField.Store = true
	packageIDField.Index = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("path", pathField)
	doc.AddFieldMappingsAt("command", commandField)
	doc.AddFieldMappingsAt("package_id", packageIDField)

	im.DefaultMapping = doc
	return im
}
