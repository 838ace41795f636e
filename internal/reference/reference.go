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

// Package reference parses a user-supplied package reference string into
// either a local filesystem path or a (registry, package, version) triple.
package reference

import (
	"os"
	"strings"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
)

// RemoteRef names a package hosted in a registry.
type RemoteRef struct {
	Registry string
	Package  string
	Version  string
}

// Reference is a PackageReference: exactly one of Local or Remote is set.
type Reference struct {
	Local  *string
	Remote *RemoteRef
}

// IsLocal reports whether this reference names a local filesystem path.
func (r Reference) IsLocal() bool { return r.Local != nil }

// Parse parses s into a Reference, applying the rules of §4.4 in order:
// a leading path separator, '/' or '.' means Local; otherwise s must split
// on exactly one ':' into a non-empty <registry>/<package-path> and a
// non-empty <version>.
func Parse(s string) (Reference, error) {
	if strings.HasPrefix(s, string(os.PathSeparator)) || strings.HasPrefix(s, "/") || strings.HasPrefix(s, ".") {
		local := s
		return Reference{Local: &local}, nil
	}

	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		return Reference{}, errors.New("version must always be specified, in the form <package>:<version>")
	case 2:
		// Proceed below.
	default:
		return Reference{}, errors.Errorf("expected only one ':', found %d", len(parts)-1)
	}

	path, version := parts[0], parts[1]
	if path == "" || version == "" {
		return Reference{}, errors.New("version must always be specified, in the form <package>:<version>")
	}

	segments := strings.SplitN(path, "/", 2)
	registry := segments[0]
	if registry == "" {
		return Reference{}, errors.New("version must always be specified, in the form <package>:<version>")
	}
	if len(segments) < 2 || segments[1] == "" {
		return Reference{}, errors.New("version must always be specified, in the form <package>:<version>")
	}

	return Reference{Remote: &RemoteRef{
		Registry: registry,
		Package:  segments[1],
		Version:  version,
	}}, nil
}
