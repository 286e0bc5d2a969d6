package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/wolfpack-pm/wolfpack/deb"
)

// Repo is a tracked upstream repository root (a base URL a user asked
// wolfpack to pull from).
type Repo struct {
	ID      int64
	Name    string
	BaseURL string
}

// Component is one (suite, component, architecture) slice of a Repo, keyed
// by the exact Packages-index URL it was pulled from.
type Component struct {
	ID           int64
	URL          string
	RepoID       int64
	Suite        string
	Component    string
	Architecture string
}

// Package is a single entry from a Packages index, already flattened to the
// columns the resolver and search need; Depends is the raw field text,
// reparsed on demand via deb.ParseExpression rather than stored structured.
type Package struct {
	ID            int64
	Name          string
	Version       string
	Architecture  string
	Description   string
	InstalledSize int64
	Depends       string
	URL           string
	Filename      string
	Hash          string
	Homepage      string
	ComponentID   int64
}

// DownloadedFile is the cached conditional-GET metadata for one fetched URL.
type DownloadedFile struct {
	URL          string
	ETag         string
	LastModified string
	Expires      int64
	Size         int64
}

// InsertRepo inserts a repo, returning its id; re-inserting an existing name
// is a no-op that returns the existing row's id.
func (s *Store) InsertRepo(ctx context.Context, name, baseURL string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO repos(name, base_url) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, baseURL)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.write.QueryRowContext(ctx, `SELECT id FROM repos WHERE name = ?`, name).Scan(&id)
	return id, err
}

// InsertComponent inserts a component slice, keyed by its unique index URL.
func (s *Store) InsertComponent(ctx context.Context, c Component) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO components(url, repo_id, suite, component, architecture)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT(url) DO NOTHING`,
		c.URL, c.RepoID, c.Suite, c.Component, c.Architecture)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.write.QueryRowContext(ctx, `SELECT id FROM components WHERE url = ?`, c.URL).Scan(&id)
	return id, err
}

// InsertPackage inserts a package keyed by its unique pool URL. It returns
// the row id and whether a new row was actually created — a pull that
// revisits an already-indexed package skips re-deriving its provisions and
// dependency edges.
func (s *Store) InsertPackage(ctx context.Context, p Package) (id int64, inserted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.write.QueryRowContext(ctx, `
		INSERT INTO packages(name, version, architecture, description,
			installed_size, depends, url, filename, hash, homepage, component_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING
		RETURNING id`,
		p.Name, p.Version, p.Architecture, p.Description, p.InstalledSize,
		p.Depends, p.URL, p.Filename, p.Hash, p.Homepage, p.ComponentID)
	if err = row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = s.write.QueryRowContext(ctx, `SELECT id FROM packages WHERE url = ?`, p.URL).Scan(&id)
			return id, false, err
		}
		return 0, false, err
	}
	return id, true, nil
}

// InsertProvision records that packageID claims to supply name, optionally
// at an exact version.
func (s *Store) InsertProvision(ctx context.Context, packageID int64, name, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO provisions(package_id, name, version) VALUES (?, ?, ?)
		 ON CONFLICT(package_id, name, version) DO NOTHING`,
		packageID, name, nullableString(version))
	return err
}

// InsertDependency records a pre-resolved child -> parent edge (child is
// depended on by parent).
func (s *Store) InsertDependency(ctx context.Context, childID, parentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO dependencies(child, parent) VALUES (?, ?) ON CONFLICT(child, parent) DO NOTHING`,
		childID, parentID)
	return err
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SelectDownloadedFile returns the cached conditional-GET metadata for url,
// or (DownloadedFile{}, false, nil) if nothing is cached yet.
func (s *Store) SelectDownloadedFile(ctx context.Context, url string) (DownloadedFile, bool, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT url, etag, last_modified, expires, size FROM downloaded_files WHERE url = ?`, url)
	var d DownloadedFile
	var etag, lastMod sql.NullString
	if err := row.Scan(&d.URL, &etag, &lastMod, &d.Expires, &d.Size); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DownloadedFile{}, false, nil
		}
		return DownloadedFile{}, false, err
	}
	d.ETag = etag.String
	d.LastModified = lastMod.String
	return d, true, nil
}

// UpsertDownloadedFile records (or refreshes) the cache entry for url.
func (s *Store) UpsertDownloadedFile(ctx context.Context, d DownloadedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.write.ExecContext(ctx, `
		INSERT INTO downloaded_files(url, etag, last_modified, expires, size)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			expires = excluded.expires,
			size = excluded.size`,
		d.URL, nullableString(d.ETag), nullableString(d.LastModified), d.Expires, d.Size)
	return err
}

// FindByName returns every package named name within repoID, across all of
// that repo's components, ordered by name ascending then version descending
// (newest first) — the order the resolver's disambiguation prompt and
// FindPackageIDByName both rely on. The version ordering is done in Go rather
// than SQL since it needs the full Debian comparator, not lexical order.
func (s *Store) FindByName(ctx context.Context, repoID int64, name string) ([]Package, error) {
	rows, err := s.read.QueryContext(ctx, `
		SELECT p.id, p.name, p.version, p.architecture, p.description, p.installed_size,
		       p.depends, p.url, p.filename, p.hash, COALESCE(p.homepage, ''), p.component_id
		FROM packages p
		JOIN components c ON c.id = p.component_id
		WHERE c.repo_id = ? AND p.name = ?`, repoID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	pkgs, err := scanPackages(rows)
	if err != nil {
		return nil, err
	}
	sort.Slice(pkgs, func(i, j int) bool {
		if pkgs[i].Name != pkgs[j].Name {
			return pkgs[i].Name < pkgs[j].Name
		}
		vi, ei := deb.ParseVersion(pkgs[i].Version)
		vj, ej := deb.ParseVersion(pkgs[j].Version)
		if ei != nil || ej != nil {
			return pkgs[i].Version > pkgs[j].Version
		}
		return vi.Compare(vj) > 0
	})
	return pkgs, nil
}

// opComparator maps a validated Debian operator to the SQL comparison
// against a deb_version_compare(...) result. Op is always one of the five
// values deb.parseOperator accepts, so interpolating the result into a
// query string carries no injection surface.
func opComparator(op string) (string, error) {
	switch op {
	case "<<":
		return "< 0", nil
	case "<=":
		return "<= 0", nil
	case "=":
		return "= 0", nil
	case ">=":
		return ">= 0", nil
	case ">>":
		return "> 0", nil
	default:
		return "", fmt.Errorf("store: invalid operator %q", op)
	}
}

// SelectDependencies returns every package within repoID that could satisfy
// choice: the union of name-matches and provision-matches, deduplicated by
// package id and sorted by name then version descending. Version
// constraints are pushed into SQL via deb_version_compare so the filtering
// runs inside the database rather than round-tripping every candidate row
// through Go.
func (s *Store) SelectDependencies(ctx context.Context, repoID int64, atoms []DependencyAtom) ([]Package, error) {
	seen := make(map[int64]Package)
	for _, a := range atoms {
		var rows *sql.Rows
		var err error
		if a.Op == "" {
			rows, err = s.read.QueryContext(ctx, `
				SELECT p.id, p.name, p.version, p.architecture, p.description,
				       p.installed_size, p.depends, p.url, p.filename, p.hash,
				       COALESCE(p.homepage, ''), p.component_id
				FROM packages p JOIN components c ON c.id = p.component_id
				WHERE c.repo_id = ? AND p.name = ?
				UNION
				SELECT p.id, p.name, p.version, p.architecture, p.description,
				       p.installed_size, p.depends, p.url, p.filename, p.hash,
				       COALESCE(p.homepage, ''), p.component_id
				FROM packages p
				JOIN components c ON c.id = p.component_id
				JOIN provisions v ON v.package_id = p.id
				WHERE c.repo_id = ? AND v.name = ?`, repoID, a.Name, repoID, a.Name)
		} else {
			cmp, cmpErr := opComparator(a.Op)
			if cmpErr != nil {
				return nil, cmpErr
			}
			query := fmt.Sprintf(`
				SELECT p.id, p.name, p.version, p.architecture, p.description,
				       p.installed_size, p.depends, p.url, p.filename, p.hash,
				       COALESCE(p.homepage, ''), p.component_id
				FROM packages p JOIN components c ON c.id = p.component_id
				WHERE c.repo_id = ? AND p.name = ? AND deb_version_compare(p.version, ?) %[1]s
				UNION
				SELECT p.id, p.name, p.version, p.architecture, p.description,
				       p.installed_size, p.depends, p.url, p.filename, p.hash,
				       COALESCE(p.homepage, ''), p.component_id
				FROM packages p
				JOIN components c ON c.id = p.component_id
				JOIN provisions v ON v.package_id = p.id
				WHERE c.repo_id = ? AND v.name = ? AND v.version IS NOT NULL
				      AND deb_version_compare(v.version, ?) %[1]s`, cmp)
			rows, err = s.read.QueryContext(ctx, query, repoID, a.Name, a.Version, repoID, a.Name, a.Version)
		}
		if err != nil {
			return nil, err
		}
		pkgs, err := scanPackages(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		for _, p := range pkgs {
			seen[p.ID] = p
		}
	}

	out := make([]Package, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		vi, ei := deb.ParseVersion(out[i].Version)
		vj, ej := deb.ParseVersion(out[j].Version)
		if ei != nil || ej != nil {
			return out[i].Version > out[j].Version
		}
		return vi.Compare(vj) > 0
	})
	return out, nil
}

// DependencyAtom is the subset of a parsed deb.Atom the store needs to
// evaluate a SELECT: a name and an optional operator/version pair.
type DependencyAtom struct {
	Name    string
	Op      string
	Version string
}

// SelectResolvedDependencies returns the packages within repoID already
// linked to parentID via a recorded dependency edge — the fast path used
// once a pull has pre-resolved a package's depends field into concrete
// rows.
func (s *Store) SelectResolvedDependencies(ctx context.Context, repoID, parentID int64) ([]Package, error) {
	rows, err := s.read.QueryContext(ctx, `
		SELECT p.id, p.name, p.version, p.architecture, p.description,
		       p.installed_size, p.depends, p.url, p.filename, p.hash,
		       COALESCE(p.homepage, ''), p.component_id
		FROM packages p
		JOIN components c ON c.id = p.component_id
		JOIN dependencies d ON d.child = p.id
		WHERE c.repo_id = ? AND d.parent = ?`, repoID, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPackages(rows)
}

// FindByID returns the package row for id within repoID, the counterpart
// search uses to turn a full-text hit's package id back into a displayable
// row.
func (s *Store) FindByID(ctx context.Context, repoID, id int64) (Package, bool, error) {
	rows, err := s.read.QueryContext(ctx, `
		SELECT p.id, p.name, p.version, p.architecture, p.description, p.installed_size,
		       p.depends, p.url, p.filename, p.hash, COALESCE(p.homepage, ''), p.component_id
		FROM packages p
		JOIN components c ON c.id = p.component_id
		WHERE c.repo_id = ? AND p.id = ?`, repoID, id)
	if err != nil {
		return Package{}, false, err
	}
	defer rows.Close()
	pkgs, err := scanPackages(rows)
	if err != nil {
		return Package{}, false, err
	}
	if len(pkgs) == 0 {
		return Package{}, false, nil
	}
	return pkgs[0], true, nil
}

// FindPackageIDByName resolves name to a single package id within repoID,
// preferring the highest version when more than one is indexed — the
// Contents indexer's way of picking one owner for a file a Contents line
// names by package name rather than by id.
func (s *Store) FindPackageIDByName(ctx context.Context, repoID int64, name string) (int64, bool, error) {
	pkgs, err := s.FindByName(ctx, repoID, name)
	if err != nil {
		return 0, false, err
	}
	if len(pkgs) == 0 {
		return 0, false, nil
	}
	return pkgs[0].ID, true, nil
}

func scanPackages(rows *sql.Rows) ([]Package, error) {
	var out []Package
	for rows.Next() {
		var p Package
		if err := rows.Scan(&p.ID, &p.Name, &p.Version, &p.Architecture, &p.Description,
			&p.InstalledSize, &p.Depends, &p.URL, &p.Filename, &p.Hash, &p.Homepage, &p.ComponentID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
