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

package reference

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	str := func(s string) *string { return &s }

	cases := map[string]struct {
		reason  string
		ref     string
		want    Reference
		wantErr string
	}{
		"AbsolutePath": {
			reason: "A string starting with / is a Local reference.",
			ref:    "/foo/bar.wasm",
			want:   Reference{Local: str("/foo/bar.wasm")},
		},
		"RelativePath": {
			reason: "A string starting with . is a Local reference.",
			ref:    "./pkg.wasm",
			want:   Reference{Local: str("./pkg.wasm")},
		},
		"Remote": {
			reason: "registry/package:version splits into a RemoteRef.",
			ref:    "upbound/foo/bar:1.2.3",
			want: Reference{Remote: &RemoteRef{
				Registry: "upbound",
				Package:  "foo/bar",
				Version:  "1.2.3",
			}},
		},
		"MissingVersion": {
			reason:  "No colon at all means no version was specified.",
			ref:     "foo",
			wantErr: "version must always be specified",
		},
		"TooManyColons": {
			reason:  "More than one colon is ambiguous and must be rejected.",
			ref:     "foo:1:2",
			wantErr: "expected only one ':', found 2",
		},
		"EmptyRegistry": {
			reason:  "A reference with no registry segment is invalid.",
			ref:     ":1.2.3",
			wantErr: "version must always be specified",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Parse(tc.ref)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("\n%s\nParse(%q): error = %v, want substring %q", tc.reason, tc.ref, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("\n%s\nParse(%q): unexpected error: %v", tc.reason, tc.ref, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("\n%s\nParse(%q): -want, +got:\n%s", tc.reason, tc.ref, diff)
			}
		})
	}
}
