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

// Package install implements the installation tracker: it applies labeled
// manifests to a cluster and later re-discovers and deletes them by install
// identity, against an external ClusterClient collaborator.
package install

import (
	"context"
	"fmt"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// The exact install-tracking label literals named by §3/§6.
const (
	LabelInstallName    = "mistletoe.dev/tied-to-install-name"
	LabelInstallVersion = "mistletoe.dev/tied-to-install-version"
)

// FieldManager is the field manager name used for every server-side apply.
const FieldManager = "mistctl"

// ResourceKind is one discoverable group/version/kind, with the scope
// discovery reported for it.
type ResourceKind struct {
	GroupVersionKind schema.GroupVersionKind
	Namespaced       bool
}

// ClusterClient is the external collaborator the tracker operates against:
// discovery, label-selector list, server-side apply, and foreground delete.
type ClusterClient interface {
	Discover(ctx context.Context) ([]ResourceKind, error)
	List(ctx context.Context, kind ResourceKind, namespace string, selector labels.Selector) ([]unstructured.Unstructured, error)
	Apply(ctx context.Context, obj *unstructured.Unstructured, fieldManager string) error
	Delete(ctx context.Context, obj *unstructured.Unstructured) error
}

// Identity is the (name, version) pair that names one install.
type Identity struct {
	Name    string
	Version uint64
}

// Labels returns the two install-tracking labels for this identity.
func (i Identity) Labels() map[string]string {
	return map[string]string{
		LabelInstallName:    i.Name,
		LabelInstallVersion: i.versionLabel(),
	}
}

func (i Identity) versionLabel() string {
	return fmt.Sprintf("v%d", i.Version)
}

// Selector builds a label selector matching this identity's name, and its
// version too when versioned is true.
func (i Identity) Selector(versioned bool) labels.Selector {
	set := labels.Set{LabelInstallName: i.Name}
	if versioned {
		set[LabelInstallVersion] = i.versionLabel()
	}
	return set.AsSelector()
}

// Apply applies manifests in input order, resolving each one's kind through
// discovery and force-owner server-side-applying with field manager
// "mistctl".
func Apply(ctx context.Context, cc ClusterClient, manifests []*unstructured.Unstructured) error {
	kinds, err := cc.Discover(ctx)
	if err != nil {
		return errors.Wrap(err, "cannot discover cluster resource kinds")
	}

	for _, m := range manifests {
		gvk := m.GroupVersionKind()
		if !reachable(kinds, gvk) {
			return errors.Errorf("cannot resolve kind %q through discovery", gvk.String())
		}
		if err := cc.Apply(ctx, m, FieldManager); err != nil {
			return errors.Wrapf(err, "cannot apply %s %q", gvk.Kind, m.GetName())
		}
	}
	return nil
}

// List iterates every discovered resource kind and lists resources matching
// id's selector. Per-kind list failures are swallowed, per §4.7/§9's
// documented non-goal of perfect partial-failure reporting.
func List(ctx context.Context, cc ClusterClient, id Identity, versioned bool) ([]unstructured.Unstructured, error) {
	kinds, err := cc.Discover(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot discover cluster resource kinds")
	}

	selector := id.Selector(versioned)

	var found []unstructured.Unstructured
	for _, k := range kinds {
		items, err := cc.List(ctx, k, "", selector)
		if err != nil {
			continue
		}
		found = append(found, items...)
	}
	return found, nil
}

// Delete runs List, then foreground-deletes every resource found. Resources
// whose kind can't be resolved are skipped silently. Returns what was
// deleted.
func Delete(ctx context.Context, cc ClusterClient, id Identity, versioned bool) ([]unstructured.Unstructured, error) {
	found, err := List(ctx, cc, id, versioned)
	if err != nil {
		return nil, err
	}

	kinds, err := cc.Discover(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot discover cluster resource kinds")
	}

	deleted := make([]unstructured.Unstructured, 0, len(found))
	for i := range found {
		obj := found[i]
		if !reachable(kinds, obj.GroupVersionKind()) {
			continue
		}
		if err := cc.Delete(ctx, &obj); err != nil {
			return nil, errors.Wrapf(err, "cannot delete %s %q", obj.GetKind(), obj.GetName())
		}
		deleted = append(deleted, obj)
	}
	return deleted, nil
}

func reachable(kinds []ResourceKind, gvk schema.GroupVersionKind) bool {
	for _, k := range kinds {
		if k.GroupVersionKind == gvk {
			return true
		}
	}
	return false
}
