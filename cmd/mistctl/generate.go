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
	"os"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/gsfraley/mistletoe/internal/install"
	"github.com/gsfraley/mistletoe/internal/renderer"
)

// generateCmd implements `mistctl generate <name> -p <package> [-f <file>]
// [-s <values>] [-o yaml|raw|dir=<path>] [-r]`.
type generateCmd struct {
	Name    string `arg:"" help:"Installation name."`
	Package string `short:"p" required:"" help:"Package reference: a local path, or <registry>/<package>:<version>."`
	File    string `short:"f" help:"Values file."`
	Values  string `short:"s" help:"Inline values, as a YAML flow mapping body."`
	Output  string `short:"o" default:"yaml" help:"Output mode: raw, yaml, or dir=<path>."`
	Process bool   `short:"r" help:"Inject install-tracking labels into the rendered manifests."`
}

func (c *generateCmd) Run(log logging.Logger) error {
	ctx := context.Background()

	result, err := generateResult(ctx, log, c.Name, c.Package, c.File, c.Values)
	if err != nil {
		return err
	}

	mode, dirPath, err := renderer.Parse(c.Output)
	if err != nil {
		return err
	}

	id := install.Identity{Name: c.Name}
	return renderer.Render(os.Stdout, os.Stderr, result, mode, dirPath, c.Process, id)
}
