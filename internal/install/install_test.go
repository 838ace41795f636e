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

package install

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var errTest = errors.New("boom")

var deploymentGVK = schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"}

type fakeClusterClient struct {
	kinds     []ResourceKind
	resources map[schema.GroupVersionKind][]unstructured.Unstructured

	applied []string
	deleted []string

	listErrForKind map[schema.GroupVersionKind]bool
	applyErr       bool
	deleteErr      bool
}

func (f *fakeClusterClient) Discover(_ context.Context) ([]ResourceKind, error) {
	return f.kinds, nil
}

func (f *fakeClusterClient) List(_ context.Context, kind ResourceKind, _ string, selector labels.Selector) ([]unstructured.Unstructured, error) {
	if f.listErrForKind[kind.GroupVersionKind] {
		return nil, errTest
	}
	var out []unstructured.Unstructured
	for _, obj := range f.resources[kind.GroupVersionKind] {
		if selector.Matches(labels.Set(obj.GetLabels())) {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (f *fakeClusterClient) Apply(_ context.Context, obj *unstructured.Unstructured, _ string) error {
	if f.applyErr {
		return errTest
	}
	f.applied = append(f.applied, obj.GetName())
	return nil
}

func (f *fakeClusterClient) Delete(_ context.Context, obj *unstructured.Unstructured) error {
	if f.deleteErr {
		return errTest
	}
	f.deleted = append(f.deleted, obj.GetName())
	return nil
}

func newManifest(name string, labels map[string]string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata": map[string]any{
			"name": name,
		},
	}}
	if labels != nil {
		u.SetLabels(labels)
	}
	return u
}

func TestApplyResolvesKindAndAppliesInOrder(t *testing.T) {
	cc := &fakeClusterClient{kinds: []ResourceKind{{GroupVersionKind: deploymentGVK, Namespaced: true}}}

	manifests := []*unstructured.Unstructured{
		newManifest("first", nil),
		newManifest("second", nil),
	}

	if err := Apply(context.Background(), cc, manifests); err != nil {
		t.Fatalf("Apply(...): unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"first", "second"}, cc.applied); diff != "" {
		t.Errorf("Apply(...): applied order -want, +got:\n%s", diff)
	}
}

func TestApplyFailsOnUnreachableKind(t *testing.T) {
	cc := &fakeClusterClient{} // no kinds discovered

	err := Apply(context.Background(), cc, []*unstructured.Unstructured{newManifest("x", nil)})
	if err == nil {
		t.Fatalf("Apply(...): expected an error for an unreachable kind")
	}
}

func TestListFiltersBySelectorAndSwallowsPerKindErrors(t *testing.T) {
	otherGVK := schema.GroupVersionKind{Group: "", Version: "v1", Kind: "Service"}

	cc := &fakeClusterClient{
		kinds: []ResourceKind{
			{GroupVersionKind: deploymentGVK, Namespaced: true},
			{GroupVersionKind: otherGVK, Namespaced: true},
		},
		resources: map[schema.GroupVersionKind][]unstructured.Unstructured{
			deploymentGVK: {
				*newManifest("mine", map[string]string{LabelInstallName: "demo", LabelInstallVersion: "v0"}),
				*newManifest("not-mine", map[string]string{LabelInstallName: "other", LabelInstallVersion: "v0"}),
			},
		},
		listErrForKind: map[schema.GroupVersionKind]bool{otherGVK: true},
	}

	got, err := List(context.Background(), cc, Identity{Name: "demo", Version: 0}, true)
	if err != nil {
		t.Fatalf("List(...): unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].GetName() != "mine" {
		t.Fatalf("List(...) = %v, want exactly one resource named %q", got, "mine")
	}
}

func TestDeleteDeletesExactlyWhatListFound(t *testing.T) {
	cc := &fakeClusterClient{
		kinds: []ResourceKind{{GroupVersionKind: deploymentGVK, Namespaced: true}},
		resources: map[schema.GroupVersionKind][]unstructured.Unstructured{
			deploymentGVK: {
				*newManifest("a", map[string]string{LabelInstallName: "demo"}),
				*newManifest("b", map[string]string{LabelInstallName: "demo"}),
			},
		},
	}

	deleted, err := Delete(context.Background(), cc, Identity{Name: "demo"}, false)
	if err != nil {
		t.Fatalf("Delete(...): unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, cc.deleted); diff != "" {
		t.Errorf("Delete(...): deleted -want, +got:\n%s", diff)
	}
	if len(deleted) != 2 {
		t.Errorf("Delete(...) returned %d resources, want 2", len(deleted))
	}
}

func TestIdentityLabelsAndSelector(t *testing.T) {
	id := Identity{Name: "demo", Version: 3}

	wantLabels := map[string]string{LabelInstallName: "demo", LabelInstallVersion: "v3"}
	if diff := cmp.Diff(wantLabels, id.Labels()); diff != "" {
		t.Errorf("Labels(): -want, +got:\n%s", diff)
	}

	sel := id.Selector(true)
	if !sel.Matches(labels.Set(wantLabels)) {
		t.Errorf("Selector(true) does not match its own labels")
	}
	if sel.Matches(labels.Set{LabelInstallName: "demo", LabelInstallVersion: "v4"}) {
		t.Errorf("Selector(true) matched a different version")
	}
}
