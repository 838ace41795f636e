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

// Package clusterclient implements install.ClusterClient against a real
// Kubernetes cluster, using client-go discovery for group/version/kind
// enumeration and a controller-runtime client for list/apply/delete.
package clusterclient

import (
	"context"
	"slices"
	"strings"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/gsfraley/mistletoe/internal/install"
)

const errKubeConfig = "cannot load kubeconfig"

// Client is the concrete install.ClusterClient.
type Client struct {
	discovery discovery.DiscoveryInterface
	kube      client.Client
}

// New builds a Client from the ambient kubeconfig, using the
// ctrl.GetConfig/client.New bootstrap idiom. Every cluster-facing mistctl
// command obtains its client through this function.
func New() (*Client, error) {
	cfg, err := ctrl.GetConfig()
	if err != nil {
		return nil, errors.Wrap(err, errKubeConfig)
	}
	return NewForConfig(cfg)
}

// NewForConfig builds a Client from an explicit rest.Config, primarily for
// tests against a fake or recorded API server.
func NewForConfig(cfg *rest.Config) (*Client, error) {
	disc, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create discovery client")
	}

	kube, err := client.New(cfg, client.Options{Scheme: scheme.Scheme})
	if err != nil {
		return nil, errors.Wrap(err, "cannot create kubernetes client")
	}

	return &Client{discovery: disc, kube: kube}, nil
}

// Discover enumerates every resource kind the API server supports listing.
// Partial discovery failures (common on clusters with an unhealthy
// aggregated API service) are tolerated as long as some resources were
// returned.
func (c *Client) Discover(_ context.Context) ([]install.ResourceKind, error) {
	_, resourceLists, err := c.discovery.ServerGroupsAndResources()
	if err != nil && len(resourceLists) == 0 {
		return nil, errors.Wrap(err, "cannot discover server resources")
	}

	var kinds []install.ResourceKind
	for _, rl := range resourceLists {
		gv, err := schema.ParseGroupVersion(rl.GroupVersion)
		if err != nil {
			continue
		}
		for _, r := range rl.APIResources {
			if strings.Contains(r.Name, "/") {
				continue // subresource, e.g. pods/status
			}
			if !slices.Contains(r.Verbs, "list") {
				continue
			}
			kinds = append(kinds, install.ResourceKind{
				GroupVersionKind: gv.WithKind(r.Kind),
				Namespaced:       r.Namespaced,
			})
		}
	}
	return kinds, nil
}

// List lists resources of kind matching selector. An empty namespace lists
// across all namespaces for namespaced kinds.
func (c *Client) List(ctx context.Context, kind install.ResourceKind, namespace string, selector labels.Selector) ([]unstructured.Unstructured, error) {
	list := &unstructured.UnstructuredList{}
	list.SetGroupVersionKind(kind.GroupVersionKind.GroupVersion().WithKind(kind.GroupVersionKind.Kind + "List"))

	opts := []client.ListOption{client.MatchingLabelsSelector{Selector: selector}}
	if namespace != "" {
		opts = append(opts, client.InNamespace(namespace))
	}

	if err := c.kube.List(ctx, list, opts...); err != nil {
		return nil, errors.Wrapf(err, "cannot list %s", kind.GroupVersionKind.Kind)
	}
	return list.Items, nil
}

// Apply force-owner server-side-applies obj with the given field manager.
func (c *Client) Apply(ctx context.Context, obj *unstructured.Unstructured, fieldManager string) error {
	err := c.kube.Patch(ctx, obj, client.Apply, client.ForceOwnership, client.FieldOwner(fieldManager))
	return errors.Wrapf(err, "cannot apply %s %q", obj.GetKind(), obj.GetName())
}

// Delete foreground-deletes obj.
func (c *Client) Delete(ctx context.Context, obj *unstructured.Unstructured) error {
	err := c.kube.Delete(ctx, obj, client.PropagationPolicy(metav1.DeletePropagationForeground))
	return errors.Wrapf(err, "cannot delete %s %q", obj.GetKind(), obj.GetName())
}
