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

package envelope

import (
	"strings"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"gopkg.in/yaml.v3"
)

const errUnmarshalNotMapping = "expected a YAML mapping"

// OrderedMap is a YAML mapping that preserves the insertion order of its
// keys across a parse-then-serialize round trip. Values may themselves be an
// OrderedMap, a []any of nested values, or any scalar yaml.v3 can decode.
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewOrderedMap returns an empty OrderedMap.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: map[string]any{}}
}

// Set inserts or overwrites a key. Overwriting an existing key does not
// change its position in iteration order.
func (m *OrderedMap) Set(key string, value any) {
	if m.values == nil {
		m.values = map[string]any{}
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key, and whether it was present.
func (m *OrderedMap) Get(key string) (any, bool) {
	if m == nil || m.values == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

// Len returns the number of keys.
func (m *OrderedMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// MarshalYAML implements yaml.v3's Marshaler by returning a *yaml.Node mapping
// whose Content preserves m's insertion order.
func (m *OrderedMap) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		kn := &yaml.Node{}
		if err := kn.Encode(k); err != nil {
			return nil, errors.Wrapf(err, "cannot encode key %q", k)
		}
		vn, err := encodeValue(v)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot encode value for key %q", k)
		}
		node.Content = append(node.Content, kn, vn)
	}
	return node, nil
}

// UnmarshalYAML implements yaml.v3's Unmarshaler, decoding a mapping node
// while preserving key order.
func (m *OrderedMap) UnmarshalYAML(value *yaml.Node) error {
	n := resolveAlias(value)
	if n.Kind != yaml.MappingNode {
		return errors.New(errUnmarshalNotMapping)
	}
	*m = OrderedMap{values: map[string]any{}}
	for i := 0; i+1 < len(n.Content); i += 2 {
		var key string
		if err := n.Content[i].Decode(&key); err != nil {
			return errors.Wrap(err, "cannot decode mapping key")
		}
		v, err := decodeValue(n.Content[i+1])
		if err != nil {
			return errors.Wrapf(err, "cannot decode value for key %q", key)
		}
		m.Set(key, v)
	}
	return nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		return resolveAlias(n.Alias)
	}
	return n
}

func decodeValue(n *yaml.Node) (any, error) {
	n = resolveAlias(n)
	switch n.Kind {
	case yaml.MappingNode:
		om := NewOrderedMap()
		if err := om.UnmarshalYAML(n); err != nil {
			return nil, err
		}
		return om, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := decodeValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, errors.Wrap(err, "cannot decode scalar")
		}
		return v, nil
	}
}

func encodeValue(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case *OrderedMap:
		if t == nil {
			t = NewOrderedMap()
		}
		raw, err := t.MarshalYAML()
		if err != nil {
			return nil, err
		}
		return raw.(*yaml.Node), nil
	case OrderedMap:
		raw, err := t.MarshalYAML()
		if err != nil {
			return nil, err
		}
		return raw.(*yaml.Node), nil
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, e := range t {
			en, err := encodeValue(e)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, en)
		}
		return node, nil
	case string:
		node := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t}
		if strings.Contains(t, "\n") {
			node.Style = yaml.LiteralStyle
		}
		return node, nil
	default:
		node := &yaml.Node{}
		if err := node.Encode(v); err != nil {
			return nil, err
		}
		return node, nil
	}
}
