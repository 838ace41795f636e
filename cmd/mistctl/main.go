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

// Package main implements mistctl, the Mistletoe CLI.
package main

import (
	goerrors "errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/crossplane/crossplane-runtime/pkg/logging"
)

// debugFlag, when present, swaps the bound logger for a verbose one and asks
// the top-level runner to print a chained cause trace on error.
type debugFlag bool

func (d debugFlag) BeforeApply(ctx *kong.Context) error { //nolint:unparam // BeforeApply requires this signature.
	logger := logging.NewLogrLogger(zap.New(zap.UseDevMode(true)))
	ctx.BindTo(logger, (*logging.Logger)(nil))
	return nil
}

// cli is the top-level mistctl command tree. Subcommands are kept in
// alphabetical order, matching the teacher's convention.
type cli struct {
	Generate  generateCmd  `cmd:"" help:"Render a package's manifests."`
	Inspect   inspectCmd   `cmd:"" help:"Inspect a package or an installation."`
	Install   installCmd   `cmd:"" help:"Render and apply a package to a cluster."`
	Registry  registryCmd  `cmd:"" help:"Manage configured package registries."`
	Uninstall uninstallCmd `cmd:"" help:"Delete a previously installed package's resources."`

	Debug debugFlag `short:"d" name:"debug" help:"Print a chained cause trace on error."`
}

func main() {
	var c cli
	logger := logging.NewNopLogger()

	parser := kong.Must(&c,
		kong.Name("mistctl"),
		kong.Description("A polyglot package manager for Kubernetes manifests."),
		kong.BindTo(logger, (*logging.Logger)(nil)),
		kong.UsageOnError())

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := ctx.Run(); err != nil {
		printError(err, bool(c.Debug))
		os.Exit(1)
	}
}

// printError prints err prefixed with a red "error:", and in debug mode
// walks its cause chain printing one "caused by:" line per layer, per §7.
func printError(err error, debug bool) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s %s\n", red("error:"), err.Error())

	if !debug {
		return
	}
	for cause := goerrors.Unwrap(err); cause != nil; cause = goerrors.Unwrap(cause) {
		fmt.Fprintf(os.Stderr, "caused by: %s\n", cause.Error())
	}
}
