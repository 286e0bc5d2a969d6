package pull

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/wolfpack-pm/wolfpack/deb"
	"github.com/wolfpack-pm/wolfpack/internal/searchindex"
	"github.com/wolfpack-pm/wolfpack/internal/store"
)

// provisionEntry is one parsed Provides: entry, a virtual name optionally
// pinned to an exact version.
type provisionEntry struct {
	Name    string
	Version string
}

// paragraphToPackage flattens one Packages-index stanza into the row the
// store expects, the list of virtual names it provides, and its parsed
// Depends expression (kept structured so the dependency queue doesn't have
// to reparse it per choice).
func paragraphToPackage(p *deb.Paragraph, baseURL string, componentID int64) (store.Package, []provisionEntry, deb.Expression, error) {
	name := p.GetString("Package")
	version := p.GetString("Version")
	filename := p.GetString("Filename")
	if name == "" || version == "" || filename == "" {
		return store.Package{}, nil, nil, fmt.Errorf("pull: index stanza missing Package/Version/Filename")
	}

	var installedSize int64
	if s := p.GetString("Installed-Size"); s != "" {
		installedSize, _ = strconv.ParseInt(s, 10, 64)
	}

	row := store.Package{
		Name:          name,
		Version:       version,
		Architecture:  p.GetString("Architecture"),
		Description:   p.GetString("Description"),
		InstalledSize: installedSize,
		Depends:       p.GetString("Depends"),
		URL:           joinURL(baseURL, filename),
		Filename:      filename,
		Hash:          p.GetString("SHA256"),
		Homepage:      p.GetString("Homepage"),
		ComponentID:   componentID,
	}

	provides, err := parseProvides(p.GetString("Provides"))
	if err != nil {
		return store.Package{}, nil, nil, fmt.Errorf("pull: parsing Provides for %s: %w", name, err)
	}
	depends, err := deb.ParseExpression(row.Depends)
	if err != nil {
		return store.Package{}, nil, nil, fmt.Errorf("pull: parsing Depends for %s: %w", name, err)
	}
	return row, provides, depends, nil
}

// parseProvides parses a Provides field's grammar (the same comma/choice
// grammar as Depends, though in practice each choice names a single atom)
// into the (name, optional exact version) pairs the provisions table stores.
func parseProvides(s string) ([]provisionEntry, error) {
	expr, err := deb.ParseExpression(s)
	if err != nil {
		return nil, err
	}
	var out []provisionEntry
	for _, choice := range expr {
		for _, atom := range choice {
			entry := provisionEntry{Name: atom.Name}
			if atom.Constraint != nil {
				entry.Version = atom.Constraint.Version.String()
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

// indexPackages parses a decompressed Packages-index body, inserting every
// stanza into the store and the search index and enqueueing a
// dependency-resolution task per Depends choice. It is the CPU-tier
// counterpart to the network fetch that produced body.
func indexPackages(ctx context.Context, st *store.Store, idx *searchindex.Indexes, queue *depQueue, log *zap.SugaredLogger, repoID, componentID int64, baseURL string, body []byte) error {
	paragraphs, err := deb.ParseParagraphs(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pull: parsing packages index: %w", err)
	}

	docs := make([]searchindex.PackageDoc, 0, len(paragraphs))
	for _, p := range paragraphs {
		row, provides, depends, err := paragraphToPackage(p, baseURL, componentID)
		if err != nil {
			log.Warnw("pull: skipping malformed stanza", "error", err)
			continue
		}

		id, inserted, err := st.InsertPackage(ctx, row)
		if err != nil {
			log.Errorw("pull: inserting package failed", "name", row.Name, "version", row.Version, "error", err)
			continue
		}
		if !inserted {
			continue // already indexed by a previous pull
		}

		for _, pr := range provides {
			if err := st.InsertProvision(ctx, id, pr.Name, pr.Version); err != nil {
				log.Errorw("pull: inserting provision failed", "package", row.Name, "provides", pr.Name, "error", err)
			}
		}

		if err := queue.enqueue(ctx, repoID, id, depends); err != nil {
			log.Errorw("pull: flushing dependency queue failed", "error", err)
		}

		docs = append(docs, searchindex.PackageDoc{
			ID:          id,
			Name:        row.Name,
			Description: row.Description,
			Homepage:    row.Homepage,
		})
	}

	if len(docs) == 0 {
		return nil
	}
	return idx.IndexPackages(docs)
}

// depTask is one Depends choice awaiting resolution against the store:
// insert a dependencies(child, parent) row once (and only once) the choice
// resolves to exactly one candidate.
type depTask struct {
	repoID   int64
	parentID int64
	atoms    []store.DependencyAtom
}

// depBatchSize is the drain granularity named in the orchestrator's
// contract: a batch fills and is resolved before growing further, so memory
// stays bounded across a pull of a large archive.
const depBatchSize = 1000

// depQueue accumulates depTasks across every Packages worker in one
// (base URL, suite) pull and resolves them against the store: a batch inline
// whenever depBatchSize tasks are queued, the rest once Contents processing
// is done.
type depQueue struct {
	st  *store.Store
	log *zap.SugaredLogger

	mu    sync.Mutex
	tasks []depTask
}

func newDepQueue(st *store.Store, log *zap.SugaredLogger) *depQueue {
	return &depQueue{st: st, log: log}
}

// enqueue adds one task per choice in expr, flushing a full batch inline.
func (q *depQueue) enqueue(ctx context.Context, repoID, parentID int64, expr deb.Expression) error {
	q.mu.Lock()
	for _, choice := range expr {
		atoms := make([]store.DependencyAtom, len(choice))
		for i, a := range choice {
			atom := store.DependencyAtom{Name: a.Name}
			if a.Constraint != nil {
				atom.Op = string(a.Constraint.Op)
				atom.Version = a.Constraint.Version.String()
			}
			atoms[i] = atom
		}
		q.tasks = append(q.tasks, depTask{repoID: repoID, parentID: parentID, atoms: atoms})
	}
	full := len(q.tasks) >= depBatchSize
	q.mu.Unlock()

	if full {
		return q.flush(ctx)
	}
	return nil
}

// flush resolves and clears whatever is currently queued.
func (q *depQueue) flush(ctx context.Context) error {
	q.mu.Lock()
	batch := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	return q.resolve(ctx, batch)
}

// drain is flush under the name used for the end-of-pull call; both do the same
// thing, but the orchestrator reads better calling "drain" once at the end.
func (q *depQueue) drain(ctx context.Context) error {
	return q.flush(ctx)
}

func (q *depQueue) resolve(ctx context.Context, batch []depTask) error {
	for _, t := range batch {
		candidates, err := q.st.SelectDependencies(ctx, t.repoID, t.atoms)
		if err != nil {
			q.log.Errorw("pull: resolving dependency choice failed", "parent", t.parentID, "error", err)
			continue
		}
		if len(candidates) != 1 {
			continue
		}
		if err := q.st.InsertDependency(ctx, candidates[0].ID, t.parentID); err != nil {
			q.log.Errorw("pull: recording dependency edge failed", "parent", t.parentID, "error", err)
		}
	}
	return nil
}
