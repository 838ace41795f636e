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

// Package input assembles a guest's MistInput envelope from an optional
// input file and an optional inline override string of comma-separated
// "key: value" pairs (a YAML flow mapping body).
package input

import (
	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gsfraley/mistletoe/internal/envelope"
)

// Assemble merges fileYAML (if non-nil) and inline (if non-empty) into a
// single ordered mapping — file entries first, inline entries overriding on
// collision — then sets name last, overriding anything prior, and wraps the
// result in a MistInput envelope.
func Assemble(name string, fileYAML []byte, inline string) (envelope.InputDoc, error) {
	data := envelope.NewOrderedMap()

	if len(fileYAML) > 0 {
		parsed := envelope.NewOrderedMap()
		if err := yaml.Unmarshal(fileYAML, parsed); err != nil {
			return envelope.InputDoc{}, errors.Wrap(err, "cannot parse input file as a YAML mapping")
		}
		for _, k := range parsed.Keys() {
			v, _ := parsed.Get(k)
			data.Set(k, v)
		}
	}

	if inline != "" {
		parsed := envelope.NewOrderedMap()
		if err := yaml.Unmarshal([]byte("{"+inline+"}"), parsed); err != nil {
			return envelope.InputDoc{}, errors.Wrap(err, "cannot parse inline values as a YAML mapping")
		}
		for _, k := range parsed.Keys() {
			v, _ := parsed.Get(k)
			data.Set(k, v)
		}
	}

	data.Set("name", name)

	return envelope.InputDoc{Data: data}, nil
}
