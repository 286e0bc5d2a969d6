// Package install implements the resolver and installer: given a requested
// package name, it walks the store's dependency graph to a concrete install
// plan, fetches and verifies every .deb the plan names, and unpacks each
// one's data archive into the per-repo store tree.
package install

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wolfpack-pm/wolfpack/deb"
	"github.com/wolfpack-pm/wolfpack/internal/config"
	"github.com/wolfpack-pm/wolfpack/internal/fetch"
	"github.com/wolfpack-pm/wolfpack/internal/store"
	"github.com/wolfpack-pm/wolfpack/internal/table"
)

// NotFound is returned when a requested package name matches nothing in any
// configured repository.
type NotFound struct {
	Name string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("install: package not found: %s", e.Name)
}

// DependencyNotFound is returned when a dependency choice in the resolution
// queue matches no candidate in the package's repository.
type DependencyNotFound struct {
	Choice string
}

func (e *DependencyNotFound) Error() string {
	return fmt.Sprintf("install: dependency not satisfiable: %s", e.Choice)
}

// ArchiveFixup rewrites whatever path-sensitive bits an extracted file
// carries (dynamic linker search paths, interpreter paths) so the file keeps
// working once it lives under root instead of at its original absolute
// destination. Production deployments wire in a real ELF rewriter; NopFixup
// is the default when none is configured.
type ArchiveFixup interface {
	Fixup(path, root string) error
}

// NopFixup is an ArchiveFixup that does nothing, for platforms or test
// setups with no binaries whose paths need rewriting.
type NopFixup struct{}

// Fixup implements ArchiveFixup.
func (NopFixup) Fixup(path, root string) error { return nil }

// Installer resolves and installs packages against a set of configured
// repositories, in alphabetical order of repository name.
type Installer struct {
	store    *store.Store
	fetcher  *fetch.Fetcher
	repos    map[string]config.Repo
	storeDir string
	cacheDir string
	fixup    ArchiveFixup
	log      *zap.SugaredLogger
	in       *bufio.Reader
	out      io.Writer
}

// New builds an Installer. in and out drive the interactive disambiguation
// prompts; pass os.Stdin and os.Stdout outside of tests. fixup may be nil, in
// which case NopFixup is used.
func New(st *store.Store, fetcher *fetch.Fetcher, repos map[string]config.Repo, storeDir, cacheDir string, fixup ArchiveFixup, log *zap.SugaredLogger, in io.Reader, out io.Writer) *Installer {
	if fixup == nil {
		fixup = NopFixup{}
	}
	return &Installer{
		store: st, fetcher: fetcher, repos: repos,
		storeDir: storeDir, cacheDir: cacheDir,
		fixup: fixup, log: log,
		in: bufio.NewReader(in), out: out,
	}
}

// repoNames returns the configured repo names in the order lookups and
// installs must try them: alphabetical, since config.Repo is a map and
// wolfpack has no other notion of declaration order to fall back on.
func (in *Installer) repoNames() []string {
	names := make([]string, 0, len(in.repos))
	for name := range in.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// candidate pairs a store row with the repo it came from, since a plan can
// span only one repo (the first one whose FindByName matched) but every
// downstream lookup needs that repo's id again.
type candidate struct {
	repoName string
	repoID   int64
	pkg      store.Package
}

// findByName looks up name across every configured repo in order, stopping
// at the first repo that has any match at all.
func (in *Installer) findByName(ctx context.Context, name string) (string, int64, []store.Package, error) {
	for _, repoName := range in.repoNames() {
		repoID, err := in.store.InsertRepo(ctx, repoName, firstOr(in.repos[repoName].BaseURLs))
		if err != nil {
			return "", 0, nil, fmt.Errorf("install: resolving repo %s: %w", repoName, err)
		}
		pkgs, err := in.store.FindByName(ctx, repoID, name)
		if err != nil {
			return "", 0, nil, fmt.Errorf("install: looking up %s in %s: %w", name, repoName, err)
		}
		if len(pkgs) > 0 {
			return repoName, repoID, pkgs, nil
		}
	}
	return "", 0, nil, &NotFound{Name: name}
}

func firstOr(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

// choose prints a numbered menu of pkgs and, if there is more than one,
// reads a 1-based selection from in.in until a valid one arrives.
func (in *Installer) choose(prompt string, pkgs []store.Package) (store.Package, error) {
	if len(pkgs) == 1 {
		return pkgs[0], nil
	}
	for i, p := range pkgs {
		fmt.Fprintf(in.out, "%d. %s  -  %s  -  %s\n", i+1, p.Name, p.Version, table.FirstLine(p.Description))
	}
	for {
		fmt.Fprint(in.out, prompt)
		line, err := in.in.ReadString('\n')
		if err != nil {
			return store.Package{}, fmt.Errorf("install: reading selection: %w", err)
		}
		i, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || i < 1 || i > len(pkgs) {
			continue
		}
		return pkgs[i-1], nil
	}
}

// Install resolves and installs every name in names, each independently:
// one name's plan does not share a visited set with another's, matching the
// per-request scoping of the dependency graph it walks.
func (in *Installer) Install(ctx context.Context, names []string) error {
	for _, name := range names {
		if err := in.installOne(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (in *Installer) installOne(ctx context.Context, name string) error {
	repoName, plan, err := in.resolveOne(ctx, name)
	if err != nil {
		return err
	}

	// Install in reverse discovery order: leaves before the roots that
	// depend on them.
	for i := len(plan) - 1; i >= 0; i-- {
		if err := in.installPackage(ctx, repoName, plan[i]); err != nil {
			return err
		}
	}
	return nil
}

// resolveOne finds, disambiguates, and walks the dependency graph for a
// single requested name, without fetching or installing anything — the
// shared first half of Install, Resolve, and Download.
func (in *Installer) resolveOne(ctx context.Context, name string) (string, []store.Package, error) {
	repoName, repoID, matches, err := in.findByName(ctx, name)
	if err != nil {
		return "", nil, err
	}
	chosen, err := in.choose("Which package do you want to install? Number: ", matches)
	if err != nil {
		return "", nil, err
	}
	plan, err := in.resolve(ctx, repoName, repoID, chosen)
	if err != nil {
		return "", nil, err
	}
	return repoName, plan, nil
}

// ResolvedEntry is one row of a resolve plan: a concrete package together
// with the repo it was resolved against.
type ResolvedEntry struct {
	RepoName string
	Package  store.Package
}

// Resolve walks the same dependency graph Install does but stops short of
// fetching or installing anything, for the `resolve` CLI command.
func (in *Installer) Resolve(ctx context.Context, names []string) ([]ResolvedEntry, error) {
	var out []ResolvedEntry
	for _, name := range names {
		repoName, plan, err := in.resolveOne(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, p := range plan {
			out = append(out, ResolvedEntry{RepoName: repoName, Package: p})
		}
	}
	return out, nil
}

// Download fetches and verifies each requested package's .deb — the named
// packages only, with no dependency expansion — and returns each one's local
// path, for the `download` CLI command.
func (in *Installer) Download(ctx context.Context, names []string) ([]string, error) {
	var paths []string
	for _, name := range names {
		repoName, _, matches, err := in.findByName(ctx, name)
		if err != nil {
			return nil, err
		}
		chosen, err := in.choose("Which package do you want to download? Number: ", matches)
		if err != nil {
			return nil, err
		}
		destPath := filepath.Join(in.cacheDir, repoName, chosen.Filename)
		if _, err := in.fetchAndVerify(ctx, repoName, destPath, chosen); err != nil {
			return nil, err
		}
		paths = append(paths, destPath)
	}
	return paths, nil
}

// fetchAndVerify downloads pkg's .deb to destPath and, if the repo has
// verification enabled, checks its detached signature, deleting destPath on
// any failure along the way. It does not touch the store directory.
func (in *Installer) fetchAndVerify(ctx context.Context, repoName, destPath string, pkg store.Package) (*deb.Package, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, fmt.Errorf("install: %w", err)
	}

	if err := in.fetcher.Fetch(ctx, pkg.URL, destPath, fetch.Options{ExpectedHash: pkg.Hash}); err != nil {
		return nil, fmt.Errorf("install: fetching %s: %w", pkg.Name, err)
	}

	f, err := os.Open(destPath)
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("install: opening %s: %w", pkg.Name, err)
	}
	archive, err := deb.NewPackage(f)
	f.Close()
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("install: reading %s: %w", pkg.Name, err)
	}

	if r, ok := in.repos[repoName]; ok && r.VerifyEnabled() {
		keyring, err := os.ReadFile(r.PublicKeyFile)
		if err != nil {
			os.Remove(destPath)
			return nil, fmt.Errorf("install: reading public key file: %w", err)
		}
		if _, err := archive.VerifySignature(string(keyring)); err != nil {
			os.Remove(destPath)
			return nil, fmt.Errorf("install: verifying %s: %w", pkg.Name, err)
		}
	}
	return archive, nil
}

// installPackage fetches, verifies, and unpacks a single resolved package
// into the repo's store tree.
func (in *Installer) installPackage(ctx context.Context, repoName string, pkg store.Package) error {
	destPath := filepath.Join(in.cacheDir, repoName, pkg.Filename)
	archive, err := in.fetchAndVerify(ctx, repoName, destPath, pkg)
	if err != nil {
		return err
	}

	root := filepath.Join(in.storeDir, repoName)
	if err := os.MkdirAll(root, 0o755); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("install: %w", err)
	}
	if err := in.extract(archive, root); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("install: extracting %s: %w", pkg.Name, err)
	}
	in.log.Infow("install: installed", "package", pkg.Name, "version", pkg.Version)
	return nil
}

// extract writes every file an archive carries under root, then runs the
// fixup collaborator over each one — mirroring the original's two-pass
// unpack: one pass to lay files down, a second to rewrite their paths now
// that they live under root instead of at their original destination.
func (in *Installer) extract(archive *deb.Package, root string) error {
	for _, file := range archive.Files {
		target := filepath.Join(root, file.DestPath)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(file.Body), os.FileMode(file.Mode)); err != nil {
			return err
		}
	}
	for _, file := range archive.Files {
		target := filepath.Join(root, file.DestPath)
		if err := in.fixup.Fixup(target, root); err != nil {
			return fmt.Errorf("fixing up %s: %w", target, err)
		}
	}
	return nil
}
