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

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/gsfraley/mistletoe/internal/clusterclient"
	"github.com/gsfraley/mistletoe/internal/install"
)

// uninstallCmd implements `mistctl uninstall <name>`: list-and-delete by
// install identity.
type uninstallCmd struct {
	Name string `arg:"" help:"Installation name."`
}

func (c *uninstallCmd) Run(_ logging.Logger) error {
	ctx := context.Background()

	cc, err := clusterclient.New()
	if err != nil {
		return errors.Wrap(err, "cannot create cluster client")
	}

	id := install.Identity{Name: c.Name}
	deleted, err := install.Delete(ctx, cc, id, false)
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		return errors.Errorf("no resources found for installation name %q", c.Name)
	}
	return nil
}
