// Package pull implements the orchestrator that refreshes every configured
// repository's metadata: it fetches and verifies each Release file, fetches
// the Packages and Contents indexes it names, and feeds the parsed result
// into the relational store and the two full-text indexes.
package pull

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wolfpack-pm/wolfpack/deb"
	"github.com/wolfpack-pm/wolfpack/internal/config"
	"github.com/wolfpack-pm/wolfpack/internal/fetch"
	"github.com/wolfpack-pm/wolfpack/internal/searchindex"
	"github.com/wolfpack-pm/wolfpack/internal/store"
)

// VerifyError is returned when a repository's Release file cannot be
// verified under any key in its configured keyring. It aborts the whole
// pull: the remaining (base URL, suite) pairs and repositories are not
// visited.
type VerifyError struct {
	Path string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("pull: signature verification failed: %s", e.Path)
}

// ioConcurrency and cpuConcurrency bound the two tiers named in the
// orchestrator's concurrency contract: network fetches run on one errgroup,
// CPU/disk-bound decoding, parsing, and indexing on another.
const (
	ioConcurrency  = 8
	cpuConcurrency = 4
)

// Orchestrator drives a pull across every configured repository.
type Orchestrator struct {
	store    *store.Store
	index    *searchindex.Indexes
	fetcher  *fetch.Fetcher
	cacheDir string
	maxAge   time.Duration
	log      *zap.SugaredLogger
}

// New builds an Orchestrator. cacheDir is the root under which Release,
// Packages, and Contents files are cached, mirroring each repo's own
// dists/... layout.
func New(st *store.Store, idx *searchindex.Indexes, fetcher *fetch.Fetcher, cacheDir string, maxAge time.Duration, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{store: st, index: idx, fetcher: fetcher, cacheDir: cacheDir, maxAge: maxAge, log: log}
}

// Pull refreshes metadata for every repository in repos, visiting them in
// name order so logs and progress bars appear in a stable sequence.
func (o *Orchestrator) Pull(ctx context.Context, repos map[string]config.Repo) error {
	names := make([]string, 0, len(repos))
	for name := range repos {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := o.pullRepo(ctx, name, repos[name]); err != nil {
			return fmt.Errorf("pull %s: %w", name, err)
		}
	}
	return nil
}

func (o *Orchestrator) pullRepo(ctx context.Context, name string, r config.Repo) error {
	native, err := deb.NativeArch()
	if err != nil {
		return err
	}

	repoID, err := o.store.InsertRepo(ctx, name, strings.Join(r.BaseURLs, ","))
	if err != nil {
		return fmt.Errorf("registering repo: %w", err)
	}

	var keyring string
	if r.VerifyEnabled() {
		data, err := os.ReadFile(r.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("reading public key file: %w", err)
		}
		keyring = string(data)
	}

	for _, baseURL := range r.BaseURLs {
		for _, suite := range r.Suites {
			if err := o.pullSuite(ctx, name, repoID, baseURL, suite, r, native, keyring); err != nil {
				return fmt.Errorf("%s %s: %w", baseURL, suite, err)
			}
		}
	}
	return nil
}

// pullSuite runs steps 2a-2f of the orchestrator contract for a single
// (base URL, suite) pair.
func (o *Orchestrator) pullSuite(ctx context.Context, repoName string, repoID int64, baseURL, suite string, r config.Repo, native deb.Arch, keyring string) error {
	bar := progressbar.Default(-1, fmt.Sprintf("%s/%s", repoName, suite))
	defer bar.Close()

	releaseDest := filepath.Join(o.cacheDir, repoName, "dists", suite, "Release")
	if err := o.fetcher.Fetch(ctx, joinURL(baseURL, "dists", suite, "Release"), releaseDest, fetch.Options{MaxAge: o.maxAge, Bar: bar}); err != nil {
		return fmt.Errorf("fetching Release: %w", err)
	}
	releaseBytes, err := os.ReadFile(releaseDest)
	if err != nil {
		return err
	}

	if r.VerifyEnabled() {
		gpgDest := releaseDest + ".gpg"
		if err := o.fetcher.Fetch(ctx, joinURL(baseURL, "dists", suite, "Release.gpg"), gpgDest, fetch.Options{MaxAge: o.maxAge}); err != nil {
			return fmt.Errorf("fetching Release.gpg: %w", err)
		}
		sigBytes, err := os.ReadFile(gpgDest)
		if err != nil {
			return err
		}
		if _, err := deb.VerifyDetachedSignature(keyring, releaseBytes, sigBytes); err != nil {
			o.log.Errorw("pull: Release signature verification failed", "repo", repoName, "suite", suite, "error", err)
			return &VerifyError{Path: releaseDest}
		}
	}

	info, entries, err := deb.ParseReleaseManifest(bytes.NewReader(releaseBytes))
	if err != nil {
		return fmt.Errorf("parsing Release: %w", err)
	}

	components := intersect(strings.Fields(info.Components), r.Components)
	archs := intersect(strings.Fields(info.Architectures), []string{string(native), string(deb.ArchAll)})
	if len(components) == 0 || len(archs) == 0 {
		o.log.Warnw("pull: no overlapping components/architectures", "repo", repoName, "suite", suite)
		return nil
	}

	queue := newDepQueue(o.store, o.log)

	if err := o.pullPackages(ctx, repoName, repoID, baseURL, suite, entries, components, archs, queue, bar); err != nil {
		return err
	}

	if err := o.store.Optimize(ctx); err != nil {
		return fmt.Errorf("optimize: %w", err)
	}

	if err := o.pullContents(ctx, repoName, repoID, baseURL, suite, entries, components, archs, bar); err != nil {
		o.log.Errorw("pull: contents processing failed", "repo", repoName, "suite", suite, "error", err)
	}

	return queue.drain(ctx)
}

// pullPackages fetches and indexes every (component, arch) Packages variant,
// splitting the work across an I/O-tier errgroup (fetch) and a CPU-tier
// errgroup (decompress, parse, store, index) as described in the
// concurrency contract.
func (o *Orchestrator) pullPackages(ctx context.Context, repoName string, repoID int64, baseURL, suite string, entries []deb.ReleaseEntry, components, archs []string, queue *depQueue, bar *progressbar.ProgressBar) error {
	fetchGroup, fetchCtx := errgroup.WithContext(ctx)
	fetchGroup.SetLimit(ioConcurrency)
	indexGroup, _ := errgroup.WithContext(ctx)
	indexGroup.SetLimit(cpuConcurrency)

	for _, component := range components {
		for _, arch := range archs {
			component, arch := component, arch
			fetchGroup.Go(func() error {
				prefix := fmt.Sprintf("%s/binary-%s/Packages", component, arch)
				body, srcURL, err := o.fetchFirstVariant(fetchCtx, repoName, baseURL, suite, entries, prefix, bar)
				if err != nil {
					o.log.Errorw("pull: packages fetch failed", "component", component, "arch", arch, "error", err)
					return nil
				}
				if body == nil {
					o.log.Warnw("pull: no packages variant available", "component", component, "arch", arch)
					return nil
				}

				componentID, err := o.store.InsertComponent(ctx, store.Component{
					URL: srcURL, RepoID: repoID, Suite: suite, Component: component, Architecture: arch,
				})
				if err != nil {
					o.log.Errorw("pull: registering component failed", "error", err)
					return nil
				}

				indexGroup.Go(func() error {
					if err := indexPackages(ctx, o.store, o.index, queue, o.log, repoID, componentID, baseURL, body); err != nil {
						o.log.Errorw("pull: indexing packages failed", "component", component, "arch", arch, "error", err)
					}
					return nil
				})
				return nil
			})
		}
	}

	if err := fetchGroup.Wait(); err != nil {
		return err
	}
	return indexGroup.Wait()
}

// pullContents fetches and indexes each architecture's Contents variant, one
// at a time, per step 2e's "single worker" directive.
func (o *Orchestrator) pullContents(ctx context.Context, repoName string, repoID int64, baseURL, suite string, entries []deb.ReleaseEntry, components, archs []string, bar *progressbar.ProgressBar) error {
	prefixes := append([]string{""}, prefixesFor(components)...)

	for _, arch := range archs {
		var body []byte
		for _, prefix := range prefixes {
			data, _, err := o.fetchFirstVariant(ctx, repoName, baseURL, suite, entries, prefix+"Contents-"+arch, bar)
			if err != nil {
				return err
			}
			if data != nil {
				body = data
				break
			}
		}
		if body == nil {
			o.log.Warnw("pull: no contents variant available", "arch", arch)
			continue
		}

		docs, err := contentsToFileDocs(ctx, o.store, o.log, repoID, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("parsing contents: %w", err)
		}
		if len(docs) == 0 {
			continue
		}
		if err := o.index.IndexFiles(docs); err != nil {
			return fmt.Errorf("indexing files: %w", err)
		}
	}
	return nil
}

func prefixesFor(components []string) []string {
	out := make([]string, len(components))
	for i, c := range components {
		out[i] = c + "/"
	}
	return out
}

// fetchFirstVariant tries every Release manifest entry whose path starts
// with prefix, in the order the manifest lists them, returning the first one
// that fetches successfully, decompressed. A 404 on a candidate falls
// through to the next one; any other fetch error is returned, which makes
// pullPackages skip that (component, arch) pair and pullContents stop
// processing Contents for every remaining architecture. Exhausting every candidate
// without a hard error returns (nil, "", nil) — the pair is simply absent.
func (o *Orchestrator) fetchFirstVariant(ctx context.Context, repoName, baseURL, suite string, entries []deb.ReleaseEntry, prefix string, bar *progressbar.ProgressBar) ([]byte, string, error) {
	var lastErr error
	for _, e := range entries {
		if !strings.HasPrefix(e.Path, prefix) {
			continue
		}

		u := joinURL(baseURL, "dists", suite, e.Path)
		dest := filepath.Join(o.cacheDir, repoName, "dists", suite, e.Path)
		if err := o.fetcher.Fetch(ctx, u, dest, fetch.Options{ExpectedHash: e.Hash, MaxAge: o.maxAge, Bar: bar}); err != nil {
			var notFound *fetch.ResourceNotFound
			if errors.As(err, &notFound) {
				lastErr = err
				continue
			}
			return nil, "", err
		}

		data, err := readDecompressed(dest)
		if err != nil {
			return nil, "", err
		}
		return data, u, nil
	}
	if lastErr != nil {
		o.log.Debugw("pull: no candidate matched", "prefix", prefix, "lastError", lastErr)
	}
	return nil, "", nil
}

func readDecompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dr, err := deb.DecompressingReader(f)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(dr)
}

// intersect returns the elements of have that also appear in want, in have's
// order.
func intersect(have, want []string) []string {
	wantSet := make(map[string]bool, len(want))
	for _, w := range want {
		wantSet[w] = true
	}
	var out []string
	for _, h := range have {
		if wantSet[h] {
			out = append(out, h)
		}
	}
	return out
}

// joinURL concatenates base with each part using exactly one slash, tolerant
// of a trailing slash on base or leading slashes on parts.
func joinURL(base string, parts ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(strings.TrimLeft(p, "/"))
	}
	return b.String()
}
