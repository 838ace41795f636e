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
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/gsfraley/mistletoe/internal/clusterclient"
	"github.com/gsfraley/mistletoe/internal/install"
)

// inspectCmd groups the two inspect subcommands, following the teacher's
// nested Cmd style (cmd/crank/xpkg/xpkg.go).
type inspectCmd struct {
	Package inspectPackageCmd `cmd:"" help:"Print a package's self-description as YAML."`
	Install inspectInstallCmd `cmd:"" help:"List resources tracked by an installation."`
}

// inspectPackageCmd implements `mistctl inspect package <package>`.
type inspectPackageCmd struct {
	Package string `arg:"" help:"Package reference: a local path, or <registry>/<package>:<version>."`
}

func (c *inspectPackageCmd) Run(log logging.Logger) error {
	ctx := context.Background()

	inst, err := loadPackage(ctx, c.Package, log)
	if err != nil {
		return err
	}
	defer inst.Close(ctx) //nolint:errcheck // best-effort teardown; nothing downstream depends on it.

	out, err := inst.Info().Serialize()
	if err != nil {
		return errors.Wrap(err, "cannot serialize package info")
	}
	_, err = os.Stdout.Write(out)
	return errors.Wrap(err, "cannot write package info")
}

// inspectInstallCmd implements `mistctl inspect install <name> [-o list|yaml]`.
type inspectInstallCmd struct {
	Name   string `arg:"" help:"Installation name."`
	Output string `short:"o" default:"list" help:"Output mode: list or yaml."`
}

func (c *inspectInstallCmd) Run(_ logging.Logger) error {
	ctx := context.Background()

	cc, err := clusterclient.New()
	if err != nil {
		return errors.Wrap(err, "cannot create cluster client")
	}

	id := install.Identity{Name: c.Name}
	found, err := install.List(ctx, cc, id, false)
	if err != nil {
		return err
	}

	switch c.Output {
	case "list", "":
		for _, obj := range found {
			fmt.Fprintf(os.Stdout, "%s/%s %s\n", obj.GetAPIVersion(), obj.GetKind(), obj.GetName())
		}
		return nil
	case "yaml":
		for i, obj := range found {
			if i > 0 {
				fmt.Fprintln(os.Stdout, "---")
			}
			out, err := sigsyaml.Marshal(obj.Object)
			if err != nil {
				return errors.Wrap(err, "cannot marshal resource")
			}
			os.Stdout.Write(out) //nolint:errcheck // best-effort write to stdout.
		}
		return nil
	default:
		return errors.Errorf("unrecognized output mode %q, want list or yaml", c.Output)
	}
}
