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

// Package envelope implements the three YAML envelope shapes shared by the
// host and guest: MistPackage, MistInput and MistResult.
package envelope

import (
	"fmt"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"gopkg.in/yaml.v3"
)

// APIVersion is the fixed apiVersion every envelope declares.
const APIVersion = "mistletoe.dev/v1alpha1"

// Kind literals for the three envelope variants.
const (
	KindPackage = "MistPackage"
	KindInput   = "MistInput"
	KindResult  = "MistResult"
)

const (
	errNotAMapping      = "envelope is not a YAML mapping"
	errMissingKind      = "envelope is missing a kind"
	errUnexpectedKind   = "unexpected kind %q, expected %q"
	errMissingData      = "envelope is missing a data body"
	errDataNotMapping   = "envelope data is not a YAML mapping"
	errPackageNameEmpty = "package info is missing a name"
	errResultTagMissing = "result data is missing a result tag"
)

// PackageFunctions names the guest's exported entry points, when the guest
// has renamed any of them away from the ABI defaults.
type PackageFunctions struct {
	Generate string
	Alloc    string
	Dealloc  string
}

// PackageInfo is a guest's self-description, returned by __mistletoe_info.
type PackageInfo struct {
	Name      string
	Labels    *OrderedMap
	Functions *PackageFunctions
}

// ParsePackageInfo parses a MistPackage document.
func ParsePackageInfo(raw []byte) (PackageInfo, error) {
	data, err := parseEnvelope(raw, KindPackage)
	if err != nil {
		return PackageInfo{}, err
	}

	nameVal, ok := data.Get("name")
	if !ok {
		return PackageInfo{}, errors.New(errPackageNameEmpty)
	}
	name, ok := nameVal.(string)
	if !ok || name == "" {
		return PackageInfo{}, errors.New(errPackageNameEmpty)
	}

	info := PackageInfo{Name: name}

	if lv, ok := data.Get("labels"); ok {
		if lm, ok := lv.(*OrderedMap); ok {
			info.Labels = lm
		}
	}

	if fv, ok := data.Get("functions"); ok {
		if fm, ok := fv.(*OrderedMap); ok {
			fns := &PackageFunctions{}
			if v, ok := fm.Get("generate"); ok {
				fns.Generate, _ = v.(string)
			}
			if v, ok := fm.Get("alloc"); ok {
				fns.Alloc, _ = v.(string)
			}
			if v, ok := fm.Get("dealloc"); ok {
				fns.Dealloc, _ = v.(string)
			}
			info.Functions = fns
		}
	}

	return info, nil
}

// Serialize renders p as a canonical MistPackage document.
func (p PackageInfo) Serialize() ([]byte, error) {
	data := NewOrderedMap()
	data.Set("name", p.Name)
	if p.Labels != nil {
		data.Set("labels", p.Labels)
	}
	if p.Functions != nil {
		fns := NewOrderedMap()
		fns.Set("generate", p.Functions.Generate)
		fns.Set("alloc", p.Functions.Alloc)
		fns.Set("dealloc", p.Functions.Dealloc)
		data.Set("functions", fns)
	}
	return marshalEnvelope(KindPackage, data)
}

// InputDoc is the MistInput envelope: a free-form mapping opaque to the host.
type InputDoc struct {
	Data *OrderedMap
}

// ParseInputDoc parses a MistInput document.
func ParseInputDoc(raw []byte) (InputDoc, error) {
	data, err := parseEnvelope(raw, KindInput)
	if err != nil {
		return InputDoc{}, err
	}
	return InputDoc{Data: data}, nil
}

// Serialize renders d as a canonical MistInput document.
func (d InputDoc) Serialize() ([]byte, error) {
	data := d.Data
	if data == nil {
		data = NewOrderedMap()
	}
	return marshalEnvelope(KindInput, data)
}

// OkResult is the successful variant of a Result.
type OkResult struct {
	Message *string
	Files   *OrderedMap // path string -> file contents string, insertion order preserved
}

// ErrResult is the failed variant of a Result.
type ErrResult struct {
	Message string
}

// ResultDoc is the MistResult envelope: a tagged Ok/Err union.
type ResultDoc struct {
	Ok  *OkResult
	Err *ErrResult
}

// IsOk reports whether this is the Ok variant.
func (d ResultDoc) IsOk() bool { return d.Ok != nil }

// NewErrResultDoc builds a synthetic Err result carrying message as context.
// Used when the host must surface an ABI-layer failure as a Result rather
// than a hard error (see Package Host §4.3).
func NewErrResultDoc(message string) ResultDoc {
	return ResultDoc{Err: &ErrResult{Message: message}}
}

// ParseResultDoc parses a MistResult document. A document whose data.result is
// anything other than the literal strings "Ok" or "Err" yields a synthetic
// Err result carrying a diagnostic message, rather than a hard parse error,
// per §4.1.
func ParseResultDoc(raw []byte) (ResultDoc, error) {
	data, err := parseEnvelope(raw, KindResult)
	if err != nil {
		return NewErrResultDoc(fmt.Sprintf("cannot parse result envelope: %s: %q", err, raw)), nil
	}

	tagVal, ok := data.Get("result")
	if !ok {
		return NewErrResultDoc(errResultTagMissing), nil
	}
	tag, _ := tagVal.(string)

	switch tag {
	case "Ok":
		ok := &OkResult{}
		if mv, present := data.Get("message"); present {
			if s, isStr := mv.(string); isStr {
				ok.Message = &s
			}
		}
		if fv, present := data.Get("files"); present {
			if fm, isMap := fv.(*OrderedMap); isMap {
				ok.Files = fm
			}
		}
		return ResultDoc{Ok: ok}, nil
	case "Err":
		msg, _ := data.Get("message")
		s, _ := msg.(string)
		return ResultDoc{Err: &ErrResult{Message: s}}, nil
	default:
		return NewErrResultDoc(fmt.Sprintf("unexpected result tag %q", tag)), nil
	}
}

// Serialize renders d as a canonical MistResult document.
func (d ResultDoc) Serialize() ([]byte, error) {
	data := NewOrderedMap()
	switch {
	case d.Ok != nil:
		data.Set("result", "Ok")
		if d.Ok.Message != nil {
			data.Set("message", *d.Ok.Message)
		}
		if d.Ok.Files != nil && d.Ok.Files.Len() > 0 {
			data.Set("files", d.Ok.Files)
		}
	case d.Err != nil:
		data.Set("result", "Err")
		data.Set("message", d.Err.Message)
	default:
		return nil, errors.New("result document has neither an Ok nor an Err variant")
	}
	return marshalEnvelope(KindResult, data)
}

func marshalEnvelope(kind string, data *OrderedMap) ([]byte, error) {
	env := NewOrderedMap()
	env.Set("apiVersion", APIVersion)
	env.Set("kind", kind)
	env.Set("data", data)
	out, err := yaml.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal envelope")
	}
	return out, nil
}

func parseEnvelope(raw []byte, wantKind string) (*OrderedMap, error) {
	env := NewOrderedMap()
	if err := yaml.Unmarshal(raw, env); err != nil {
		return nil, errors.Wrap(err, errNotAMapping)
	}

	kindVal, ok := env.Get("kind")
	if !ok {
		return nil, errors.New(errMissingKind)
	}
	kind, _ := kindVal.(string)
	if kind != wantKind {
		return nil, errors.Errorf(errUnexpectedKind, kind, wantKind)
	}

	dataVal, ok := env.Get("data")
	if !ok {
		return nil, errors.New(errMissingData)
	}
	data, ok := dataVal.(*OrderedMap)
	if !ok {
		return nil, errors.New(errDataNotMapping)
	}
	return data, nil
}
