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

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/gsfraley/mistletoe/internal/config"
	"github.com/gsfraley/mistletoe/internal/envelope"
	"github.com/gsfraley/mistletoe/internal/host"
	"github.com/gsfraley/mistletoe/internal/input"
	"github.com/gsfraley/mistletoe/internal/reference"
	"github.com/gsfraley/mistletoe/internal/registry"
)

// loadPackage resolves pkgRef to a bytecode artifact (local path or
// registry-mirrored) and loads it as a Package Host instance. Callers must
// Close the returned instance.
func loadPackage(ctx context.Context, pkgRef string, log logging.Logger) (*host.Instance, error) {
	ref, err := reference.Parse(pkgRef)
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse package reference")
	}

	if ref.IsLocal() {
		return host.Load(ctx, *ref.Local, true, nil, log)
	}

	home, err := config.Home()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(home)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load mistletoe config")
	}

	artifact, err := registry.NewResolver(home, cfg).Resolve(ctx, ref.Remote.Registry, ref.Remote.Package, ref.Remote.Version)
	if err != nil {
		return nil, err
	}
	return host.Load(ctx, artifact, false, nil, log)
}

// assembleInput reads the optional values file and builds the serialized
// MistInput document the guest's generate export expects.
func assembleInput(name, file, values string) (string, error) {
	var fileYAML []byte
	if file != "" {
		raw, err := os.ReadFile(file) //nolint:gosec // file is an explicit user-supplied CLI argument.
		if err != nil {
			return "", errors.Wrap(err, "cannot read values file")
		}
		fileYAML = raw
	}

	doc, err := input.Assemble(name, fileYAML, values)
	if err != nil {
		return "", errors.Wrap(err, "cannot assemble input")
	}

	out, err := doc.Serialize()
	if err != nil {
		return "", errors.Wrap(err, "cannot serialize input")
	}
	return string(out), nil
}

// generateResult loads pkgRef, assembles its input, and runs generate,
// returning the guest's result.
func generateResult(ctx context.Context, log logging.Logger, name, pkgRef, file, values string) (envelope.ResultDoc, error) {
	inst, err := loadPackage(ctx, pkgRef, log)
	if err != nil {
		return envelope.ResultDoc{}, err
	}
	defer inst.Close(ctx) //nolint:errcheck // best-effort teardown; the primary error already returned.

	inputYAML, err := assembleInput(name, file, values)
	if err != nil {
		return envelope.ResultDoc{}, err
	}

	return inst.Generate(ctx, inputYAML)
}
