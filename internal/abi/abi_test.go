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

package abi

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gsfraley/mistletoe/internal/envelope"
)

func TestDecodeDescriptor(t *testing.T) {
	cases := map[string]struct {
		reason  string
		mem     []byte
		addr    uint32
		want    Descriptor
		wantErr bool
	}{
		"Zero": {
			reason: "A descriptor of (0,0) at address 0 should decode cleanly.",
			mem:    make([]byte, 8),
			addr:   0,
			want:   Descriptor{},
		},
		"NonZero": {
			reason: "Little-endian bytes should decode to the matching integers.",
			mem:    []byte{0x10, 0x00, 0x00, 0x00, 0x20, 0x00, 0x00, 0x00},
			addr:   0,
			want:   Descriptor{Ptr: 16, Len: 32},
		},
		"OutOfBounds": {
			reason: "A read that would run off the end of memory must error, never panic.",
			mem:    make([]byte, 4),
			addr:   0,
			wantErr: true,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := DecodeDescriptor(tc.mem, tc.addr)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("\n%s\nDecodeDescriptor(...): expected an error", tc.reason)
				}
				return
			}
			if err != nil {
				t.Fatalf("\n%s\nDecodeDescriptor(...): unexpected error: %v", tc.reason, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("\n%s\nDecodeDescriptor(...): -want, +got:\n%s", tc.reason, diff)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	cases := map[string]struct {
		reason string
		info   envelope.PackageInfo
		want   ExportNames
	}{
		"NoFunctionsBlock": {
			reason: "Without a functions block, the fixed defaults apply.",
			info:   envelope.PackageInfo{Name: "nginx"},
			want: ExportNames{
				Generate: DefaultGenerateExport,
				Alloc:    DefaultAllocExport,
				Dealloc:  DefaultDeallocExport,
			},
		},
		"PartialOverride": {
			reason: "A functions block may rename only some exports; the rest keep their defaults.",
			info: envelope.PackageInfo{
				Name:      "nginx",
				Functions: &envelope.PackageFunctions{Generate: "render"},
			},
			want: ExportNames{
				Generate: "render",
				Alloc:    DefaultAllocExport,
				Dealloc:  DefaultDeallocExport,
			},
		},
		"FullOverride": {
			reason: "All three exports may be renamed.",
			info: envelope.PackageInfo{
				Name:      "nginx",
				Functions: &envelope.PackageFunctions{Generate: "g", Alloc: "a", Dealloc: "d"},
			},
			want: ExportNames{Generate: "g", Alloc: "a", Dealloc: "d"},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := Resolve(tc.info)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("\n%s\nResolve(...): -want, +got:\n%s", tc.reason, diff)
			}
		})
	}
}
