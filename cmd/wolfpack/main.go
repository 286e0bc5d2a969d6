// Command wolfpack is the CLI entry point: pull refreshes repository
// metadata, search/resolve/install/download drive the dependency resolver
// against whatever a prior pull left in the store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wolfpack-pm/wolfpack/internal/config"
	"github.com/wolfpack-pm/wolfpack/internal/fetch"
	"github.com/wolfpack-pm/wolfpack/internal/install"
	"github.com/wolfpack-pm/wolfpack/internal/pull"
	"github.com/wolfpack-pm/wolfpack/internal/search"
	"github.com/wolfpack-pm/wolfpack/internal/searchindex"
	"github.com/wolfpack-pm/wolfpack/internal/store"
	"github.com/wolfpack-pm/wolfpack/internal/table"
	"github.com/wolfpack-pm/wolfpack/internal/wplog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "pull":
		err = runPull(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	case "install":
		err = runInstall(os.Args[2:])
	case "resolve":
		err = runResolve(os.Args[2:])
	case "download":
		err = runDownload(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	os.Exit(exitCode(err))
}

func printUsage() {
	fmt.Println("Usage: wolfpack <command> [flags]")
	fmt.Println("\nCommands:")
	fmt.Println("  pull                              Refresh metadata for every configured repository")
	fmt.Println("  search [--by keyword|file|command] <query...>")
	fmt.Println("  install <package...>              Resolve and install, interactive on ambiguity")
	fmt.Println("  resolve <package...>              Print the candidate install plan without installing")
	fmt.Println("  download <package...>             Fetch and verify .deb files only")
}

// exitCode maps an error to the status spec.md §6/§7 names: 2 for
// NotFound/DependencyNotFound, 1 for anything else, 0 on success.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var notFound *install.NotFound
	var depNotFound *install.DependencyNotFound
	if errors.As(err, &notFound) || errors.As(err, &depNotFound) {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	fmt.Fprintln(os.Stderr, err)
	return 1
}

// commonFlags bundles the -config/-verbose pair every subcommand exposes
// through its own flag.NewFlagSet, in the teacher's per-subcommand style.
type commonFlags struct {
	configPath string
	verbose    bool
}

func bindCommon(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.configPath, "config", "config.toml", "path to config.toml")
	fs.BoolVar(&c.verbose, "verbose", false, "enable debug logging")
	return c
}

// env bundles the pieces every subcommand needs after loading config: the
// logger, the open store, and the configured repo map.
type env struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	store   *store.Store
	fetcher *fetch.Fetcher
	index   *searchindex.Indexes
}

func setup(c *commonFlags) (*env, func(), error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := wplog.New(c.verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("wolfpack: building logger: %w", err)
	}

	dbPath := filepath.Join(cfg.CacheDir, "wolfpack.sqlite3")
	st, err := store.Open(context.Background(), dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("wolfpack: opening store: %w", err)
	}

	idx, err := searchindex.Open(filepath.Join(cfg.CacheDir, "index"))
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("wolfpack: opening indexes: %w", err)
	}

	fetcher := fetch.New(nil, st, log)

	e := &env{cfg: cfg, log: log, store: st, fetcher: fetcher, index: idx}
	cleanup := func() {
		idx.Close()
		st.Close()
		log.Sync()
	}
	return e, cleanup, nil
}

func runPull(args []string) error {
	fs := flag.NewFlagSet("pull", flag.ExitOnError)
	c := bindCommon(fs)
	fs.Parse(args)

	e, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	maxAge := time.Duration(e.cfg.MaxAge) * time.Second
	orch := pull.New(e.store, e.index, e.fetcher, e.cfg.CacheDir, maxAge, e.log)
	return orch.Pull(context.Background(), e.cfg.Repo)
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	c := bindCommon(fs)
	by := fs.String("by", "keyword", "search mode: keyword, file, or command")
	repoFlag := fs.String("repo", "", "limit the search to a single configured repo (default: all)")
	fs.Parse(args)

	keyword := strings.Join(fs.Args(), " ")
	if keyword == "" {
		return fmt.Errorf("wolfpack: search: a query is required")
	}

	e, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	searcher := search.New(e.store, e.index)
	ctx := context.Background()

	names, err := repoNames(e.cfg, *repoFlag)
	if err != nil {
		return err
	}
	for _, name := range names {
		repo := e.cfg.Repo[name]
		repoID, err := e.store.InsertRepo(ctx, name, firstOr(repo.BaseURLs))
		if err != nil {
			return fmt.Errorf("wolfpack: resolving repo %s: %w", name, err)
		}
		if len(names) > 1 {
			fmt.Printf("== %s ==\n", name)
		}
		if _, err := searcher.Search(ctx, repoID, search.By(*by), keyword, os.Stdout); err != nil {
			return err
		}
	}
	return nil
}

func runInstall(args []string) error {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	c := bindCommon(fs)
	fs.Parse(args)
	names := fs.Args()
	if len(names) == 0 {
		return fmt.Errorf("wolfpack: install: at least one package name is required")
	}

	e, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	in := install.New(e.store, e.fetcher, e.cfg.Repo, e.cfg.StoreDir, e.cfg.CacheDir, nil, e.log, os.Stdin, os.Stdout)
	return in.Install(context.Background(), names)
}

func runResolve(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	c := bindCommon(fs)
	fs.Parse(args)
	names := fs.Args()
	if len(names) == 0 {
		return fmt.Errorf("wolfpack: resolve: at least one package name is required")
	}

	e, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	in := install.New(e.store, e.fetcher, e.cfg.Repo, e.cfg.StoreDir, e.cfg.CacheDir, nil, e.log, os.Stdin, os.Stdout)
	entries, err := in.Resolve(context.Background(), names)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(entries))
	for _, en := range entries {
		rows = append(rows, []string{en.Package.Name, en.Package.Version, en.Package.Architecture, en.RepoName})
	}
	return table.Print(os.Stdout, rows)
}

func runDownload(args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	c := bindCommon(fs)
	fs.Parse(args)
	names := fs.Args()
	if len(names) == 0 {
		return fmt.Errorf("wolfpack: download: at least one package name is required")
	}

	e, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	in := install.New(e.store, e.fetcher, e.cfg.Repo, e.cfg.StoreDir, e.cfg.CacheDir, nil, e.log, os.Stdin, os.Stdout)
	paths, err := in.Download(context.Background(), names)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

// repoNames returns the repo names a command should iterate: just only if
// only is non-empty (after validating it's configured), every configured
// repo in sorted order otherwise.
func repoNames(cfg *config.Config, only string) ([]string, error) {
	if only != "" {
		if _, ok := cfg.Repo[only]; !ok {
			return nil, fmt.Errorf("wolfpack: unknown repo %q", only)
		}
		return []string{only}, nil
	}
	names := make([]string, 0, len(cfg.Repo))
	for name := range cfg.Repo {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func firstOr(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}
