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

// Package abi defines the fixed contract between the package host and a
// guest module: export names, the calling convention, and the little-endian
// descriptor layout used to pass variable-length buffers across the
// boundary.
package abi

import (
	"encoding/binary"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/gsfraley/mistletoe/internal/envelope"
)

// InfoExport is the guest export the host calls to self-describe. It is
// never renameable, unlike Generate/Alloc/Dealloc.
const InfoExport = "__mistletoe_info"

// Default export names used when a guest's PackageInfo doesn't name its own.
const (
	DefaultGenerateExport = "__mistletoe_generate"
	DefaultAllocExport    = "__mistletoe_alloc"
	DefaultDeallocExport  = "__mistletoe_dealloc"
)

// RandomModule and RandomFunction name the optional host import a guest may
// use to request cryptographically random bytes, matching the original Rust
// binding's extern declaration (mistletoe-bind/src/random.rs):
// env.__mistletoe_get_random_bytes(len: usize) -> *mut u8. The guest
// allocates nothing itself; the host must allocate the returned buffer
// inside guest memory via the guest's own alloc export and return its
// pointer.
const (
	RandomModule   = "env"
	RandomFunction = "__mistletoe_get_random_bytes"
)

// DescriptorSize is the width in bytes of a (ptr, len) descriptor.
const DescriptorSize = 8

// Descriptor is a little-endian (ptr, len) pair identifying a buffer in
// guest linear memory.
type Descriptor struct {
	Ptr uint32
	Len uint32
}

// DecodeDescriptor reads a Descriptor from mem at addr.
func DecodeDescriptor(mem []byte, addr uint32) (Descriptor, error) {
	if uint64(addr)+DescriptorSize > uint64(len(mem)) {
		return Descriptor{}, errors.Errorf("descriptor read at %d falls outside %d-byte guest memory", addr, len(mem))
	}
	b := mem[addr : addr+DescriptorSize]
	return Descriptor{
		Ptr: binary.LittleEndian.Uint32(b[0:4]),
		Len: binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// ExportNames is the resolved set of entry point names a Package Host will
// call, after applying the name resolution policy of §4.2.
type ExportNames struct {
	Generate string
	Alloc    string
	Dealloc  string
}

// Resolve applies the ABI's name resolution policy: a guest's self-reported
// functions block takes precedence for Generate/Alloc/Dealloc; otherwise the
// fixed defaults are used. __mistletoe_info is never renameable and so has
// no entry here.
func Resolve(info envelope.PackageInfo) ExportNames {
	names := ExportNames{
		Generate: DefaultGenerateExport,
		Alloc:    DefaultAllocExport,
		Dealloc:  DefaultDeallocExport,
	}
	if info.Functions == nil {
		return names
	}
	if info.Functions.Generate != "" {
		names.Generate = info.Functions.Generate
	}
	if info.Functions.Alloc != "" {
		names.Alloc = info.Functions.Alloc
	}
	if info.Functions.Dealloc != "" {
		names.Dealloc = info.Functions.Dealloc
	}
	return names
}
