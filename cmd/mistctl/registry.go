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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/gsfraley/mistletoe/internal/config"
	"github.com/gsfraley/mistletoe/internal/registry"
)

const defaultRemoteName = "origin"

// registryCmd groups the three registry subcommands.
type registryCmd struct {
	Add    registryAddCmd    `cmd:"" help:"Clone a registry and add it to the configuration."`
	List   registryListCmd   `cmd:"" help:"List configured registries."`
	Remove registryRemoveCmd `cmd:"" help:"Remove a configured registry."`
}

// registryAddCmd implements `mistctl registry add <name> -g <git-url>`.
type registryAddCmd struct {
	Name string `arg:"" help:"Registry name."`
	Git  string `short:"g" name:"git" required:"" help:"Git URL of the registry."`
}

func (c *registryAddCmd) Run(_ logging.Logger) error {
	ctx := context.Background()

	home, err := config.Home()
	if err != nil {
		return err
	}

	if err := registry.Add(ctx, home, c.Name, c.Git); err != nil {
		return err
	}

	cfg, err := config.Load(home)
	if err != nil {
		return errors.Wrap(err, "cannot load mistletoe config")
	}

	cfg.UpsertRegistry(config.Registry{
		Name:          c.Name,
		DefaultRemote: defaultRemoteName,
		Remotes: []config.Remote{
			{Name: defaultRemoteName, Git: &config.GitRemote{URL: c.Git}},
		},
	})

	return errors.Wrap(config.Save(home, cfg), "cannot save mistletoe config")
}

// registryListCmd implements `mistctl registry list`.
type registryListCmd struct{}

func (c *registryListCmd) Run(_ logging.Logger) error {
	home, err := config.Home()
	if err != nil {
		return err
	}
	cfg, err := config.Load(home)
	if err != nil {
		return errors.Wrap(err, "cannot load mistletoe config")
	}
	for _, r := range cfg.Spec.Registries {
		fmt.Fprintln(os.Stdout, r.Name)
	}
	return nil
}

// registryRemoveCmd implements `mistctl registry remove <name>`.
type registryRemoveCmd struct {
	Name string `arg:"" help:"Registry name."`
}

func (c *registryRemoveCmd) Run(_ logging.Logger) error {
	home, err := config.Home()
	if err != nil {
		return err
	}

	cfg, err := config.Load(home)
	if err != nil {
		return errors.Wrap(err, "cannot load mistletoe config")
	}
	cfg.RemoveRegistry(c.Name)
	if err := config.Save(home, cfg); err != nil {
		return errors.Wrap(err, "cannot save mistletoe config")
	}

	return registry.Remove(home, c.Name)
}
