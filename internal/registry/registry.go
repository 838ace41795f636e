// Copyright 2024 The Mistletoe Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package registry implements the git-backed registry collaborator: it
// mirrors a registry's version-controlled working copy under the mistletoe
// home directory and resolves a (registry, package, version) triple to a
// concrete bytecode artifact path.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/go-git/go-git/v5"

	"github.com/gsfraley/mistletoe/internal/config"
)

const registriesDirName = "registries"

// Resolver resolves remote package references against the registries
// configured in cfg, cloning or updating their working copies under home as
// needed.
type Resolver struct {
	home string
	cfg  config.Config
}

// NewResolver builds a Resolver rooted at home with the registries
// described by cfg.
func NewResolver(home string, cfg config.Config) *Resolver {
	return &Resolver{home: home, cfg: cfg}
}

// Dir returns the on-disk working copy directory for a configured registry.
func (r *Resolver) Dir(registryName string) string {
	return filepath.Join(r.home, registriesDirName, registryName)
}

// Resolve clones or updates the named registry's working copy and returns
// the path to the requested package's bytecode artifact. It fails with a
// "package not found" error if the artifact does not exist in the working
// copy.
func (r *Resolver) Resolve(ctx context.Context, registryName, pkg, version string) (string, error) {
	reg, ok := r.cfg.FindRegistry(registryName)
	if !ok {
		return "", errors.Errorf("registry %q is not configured", registryName)
	}

	remote, ok := defaultRemote(reg)
	if !ok {
		return "", errors.Errorf("registry %q has no usable remote", registryName)
	}

	dir := r.Dir(registryName)
	if err := ensureMirrored(ctx, dir, remote.Git.URL); err != nil {
		return "", errors.Wrapf(err, "cannot mirror registry %q", registryName)
	}

	artifact := filepath.Join(dir, pkg, fmt.Sprintf("%s-%s.mist-pack.wasm", filepath.Base(pkg), version))
	if _, err := os.Stat(artifact); err != nil {
		if os.IsNotExist(err) {
			return "", errors.Errorf("package %q not found at version %q in registry %q", pkg, version, registryName)
		}
		return "", errors.Wrap(err, "cannot stat package artifact")
	}
	return artifact, nil
}

func defaultRemote(reg config.Registry) (config.Remote, bool) {
	for _, rem := range reg.Remotes {
		if rem.Name == reg.DefaultRemote && rem.Git != nil {
			return rem, true
		}
	}
	for _, rem := range reg.Remotes {
		if rem.Git != nil {
			return rem, true
		}
	}
	return config.Remote{}, false
}

// Add clones url into the working copy for registryName, failing if a
// working copy already exists there.
func Add(ctx context.Context, home, registryName, url string) error {
	dir := filepath.Join(home, registriesDirName, registryName)
	if _, err := os.Stat(dir); err == nil {
		return errors.Errorf("registry %q already has a working copy at %s", registryName, dir)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o750); err != nil {
		return errors.Wrap(err, "cannot create registries directory")
	}
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: url})
	return errors.Wrapf(err, "cannot clone registry %q", registryName)
}

// Remove deletes the working copy for registryName.
func Remove(home, registryName string) error {
	dir := filepath.Join(home, registriesDirName, registryName)
	return errors.Wrapf(os.RemoveAll(dir), "cannot remove registry %q working copy", registryName)
}

func ensureMirrored(ctx context.Context, dir, url string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		_, cloneErr := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: url})
		return cloneErr
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "cannot open registry working tree")
	}

	err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return errors.Wrap(err, "cannot update registry working copy")
	}
	return nil
}
