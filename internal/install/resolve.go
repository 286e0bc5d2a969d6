package install

import (
	"context"
	"fmt"

	"github.com/wolfpack-pm/wolfpack/deb"
	"github.com/wolfpack-pm/wolfpack/internal/store"
)

// packageCandidate adapts a store.Package to deb.Candidate so an Atom can be
// matched against it directly, without round-tripping through the store's
// own provision-aware queries again.
type packageCandidate struct {
	name    string
	version deb.Version
}

func (c packageCandidate) PackageName() string        { return c.name }
func (c packageCandidate) PackageVersion() deb.Version { return c.version }
func (c packageCandidate) Provides() []deb.Provides    { return nil }

// resolve walks root's dependency graph to a concrete install plan: root
// itself, then every package it transitively depends on, in discovery
// order (so installing in reverse gives leaves before roots).
func (in *Installer) resolve(ctx context.Context, repoName string, repoID int64, root store.Package) ([]store.Package, error) {
	plan := []store.Package{root}

	depends, err := deb.ParseExpression(root.Depends)
	if err != nil {
		return nil, fmt.Errorf("install: parsing %s's Depends: %w", root.Name, err)
	}
	queue := make(deb.Expression, len(depends))
	copy(queue, depends)

	resolved, err := in.store.SelectResolvedDependencies(ctx, repoID, root.ID)
	if err != nil {
		return nil, fmt.Errorf("install: reading resolved dependencies for %s: %w", root.Name, err)
	}
	for _, r := range resolved {
		version, err := deb.ParseVersion(r.Version)
		if err != nil {
			return nil, fmt.Errorf("install: parsing %s's version %q: %w", r.Name, r.Version, err)
		}
		candidate := packageCandidate{name: r.Name, version: version}

		idx := -1
		for i, choice := range queue {
			if choiceMatches(choice, candidate) {
				idx = i
				break
			}
		}
		if idx == -1 {
			continue
		}
		queue = append(queue[:idx], queue[idx+1:]...)

		rdepends, err := deb.ParseExpression(r.Depends)
		if err != nil {
			return nil, fmt.Errorf("install: parsing %s's Depends: %w", r.Name, err)
		}
		queue = append(queue, rdepends...)
		plan = append(plan, r)
	}

	visited := make(map[string]bool)
	for len(queue) > 0 {
		choice := queue[0]
		queue = queue[1:]

		candidates, err := in.store.SelectDependencies(ctx, repoID, choiceAtoms(choice))
		if err != nil {
			return nil, fmt.Errorf("install: resolving %s: %w", choice, err)
		}
		if len(candidates) == 0 {
			return nil, &DependencyNotFound{Choice: choice.String()}
		}

		if uniqueNameCount(candidates) > 1 {
			alreadyDecided := false
			for _, c := range candidates {
				if visited[c.Hash] {
					alreadyDecided = true
					break
				}
			}
			if alreadyDecided {
				continue
			}
			chosen, err := in.choose("Which dependency do you want to install? Number: ", candidates)
			if err != nil {
				return nil, err
			}
			candidates = []store.Package{chosen}
		} else {
			// candidates is already sorted name ASC, version DESC; with a
			// single name the first entry is the highest version.
			candidates = candidates[:1]
		}

		for _, c := range candidates {
			if visited[c.Hash] {
				continue
			}
			visited[c.Hash] = true

			cdepends, err := deb.ParseExpression(c.Depends)
			if err != nil {
				return nil, fmt.Errorf("install: parsing %s's Depends: %w", c.Name, err)
			}
			queue = append(queue, cdepends...)
			plan = append(plan, c)
		}
	}
	return plan, nil
}

func choiceMatches(choice deb.Choice, candidate packageCandidate) bool {
	for _, atom := range choice {
		if atom.Matches(candidate) {
			return true
		}
	}
	return false
}

func choiceAtoms(choice deb.Choice) []store.DependencyAtom {
	atoms := make([]store.DependencyAtom, len(choice))
	for i, a := range choice {
		atom := store.DependencyAtom{Name: a.Name}
		if a.Constraint != nil {
			atom.Op = string(a.Constraint.Op)
			atom.Version = a.Constraint.Version.String()
		}
		atoms[i] = atom
	}
	return atoms
}

func uniqueNameCount(pkgs []store.Package) int {
	names := make(map[string]bool, len(pkgs))
	for _, p := range pkgs {
		names[p.Name] = true
	}
	return len(names)
}
