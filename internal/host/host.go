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

// Package host implements the package host: it loads a guest bytecode
// artifact, negotiates the Guest ABI, and owns every guest-side allocation
// it causes to exist.
package host

import (
	"context"
	"crypto/rand"
	"io"
	"os"
	"unicode/utf8"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/gsfraley/mistletoe/internal/abi"
	"github.com/gsfraley/mistletoe/internal/envelope"
)

const (
	errReadArtifact    = "cannot read package artifact"
	errCompileArtifact = "cannot compile package artifact"
	errInstantiate     = "cannot instantiate package guest module"
	errRegisterRandom  = "cannot register random-bytes host import"
)

// Instance owns one loaded guest module: its runtime store, the
// instantiated module, and its cached PackageInfo. It is not safe for
// concurrent use, mirroring the "not thread-safe, holds exclusive ownership"
// contract of §4.3 and §5.
type Instance struct {
	runtime wazero.Runtime
	module  api.Module

	info    envelope.PackageInfo
	names   abi.ExportNames
	isLocal bool

	log logging.Logger
}

// Load resolves artifactPath to a guest module, instantiates it (providing a
// random-bytes host import if and only if the guest imports one), and calls
// __mistletoe_info to cache the guest's self-description. isLocal records
// the provenance of the artifact, per the is_local policy of §4.3/§7.
func Load(ctx context.Context, artifactPath string, isLocal bool, rng io.Reader, log logging.Logger) (*Instance, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if rng == nil {
		rng = rand.Reader
	}

	wasmBytes, err := os.ReadFile(artifactPath) //nolint:gosec // the path is resolved by our own reference/registry logic.
	if err != nil {
		return nil, errors.Wrap(err, errReadArtifact)
	}

	rt := wazero.NewRuntime(ctx)

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(err, errCompileArtifact)
	}

	if importsRandom(compiled) {
		if err := registerRandom(ctx, rt, rng); err != nil {
			_ = rt.Close(ctx)
			return nil, errors.Wrap(err, errRegisterRandom)
		}
	}

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(err, errInstantiate)
	}

	inst := &Instance{runtime: rt, module: mod, isLocal: isLocal, log: log}

	info, names, err := inst.loadInfo(ctx)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	inst.info, inst.names = info, names

	return inst, nil
}

func importsRandom(compiled wazero.CompiledModule) bool {
	for _, imp := range compiled.ImportedFunctions() {
		moduleName, name, _ := imp.Import()
		if moduleName == abi.RandomModule && name == abi.RandomFunction {
			return true
		}
	}
	return false
}

// registerRandom implements env.__mistletoe_get_random_bytes(len) -> ptr:
// the guest hands over a length and expects back a pointer to a
// guest-owned buffer already filled with random bytes. The host has no
// allocator of its own inside guest linear memory, so it allocates the
// buffer by calling back into the guest's own alloc export before filling
// it, mirroring the pointer-returning signature of mistletoe-bind/src/random.rs.
func registerRandom(ctx context.Context, rt wazero.Runtime, rng io.Reader) error {
	_, err := rt.NewHostModuleBuilder(abi.RandomModule).
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, length uint32) uint32 {
			allocFn := mod.ExportedFunction(abi.DefaultAllocExport)
			if allocFn == nil {
				return 0
			}
			results, err := allocFn.Call(ctx, uint64(length))
			if err != nil || len(results) != 1 {
				return 0
			}
			ptr := uint32(results[0])

			buf := make([]byte, length)
			_, _ = io.ReadFull(rng, buf)
			mod.Memory().Write(ptr, buf)
			return ptr
		}).
		Export(abi.RandomFunction).
		Instantiate(ctx)
	return err
}

func (i *Instance) loadInfo(ctx context.Context) (envelope.PackageInfo, abi.ExportNames, error) {
	infoFn := i.module.ExportedFunction(abi.InfoExport)
	if infoFn == nil {
		return envelope.PackageInfo{}, abi.ExportNames{}, errors.Errorf("package guest module does not export %q", abi.InfoExport)
	}

	results, err := infoFn.Call(ctx)
	if err != nil {
		return envelope.PackageInfo{}, abi.ExportNames{}, errors.Wrapf(err, "cannot call %q", abi.InfoExport)
	}
	if len(results) != 1 {
		return envelope.PackageInfo{}, abi.ExportNames{}, errors.Errorf("%q returned %d results, expected 1", abi.InfoExport, len(results))
	}

	payload, err := i.readDescribedPayload(uint32(results[0]))
	if err != nil {
		return envelope.PackageInfo{}, abi.ExportNames{}, err
	}

	info, err := envelope.ParsePackageInfo(payload)
	if err != nil {
		return envelope.PackageInfo{}, abi.ExportNames{}, errors.Wrap(err, "cannot parse package info")
	}

	return info, abi.Resolve(info), nil
}

// readDescribedPayload reads an 8-byte descriptor at descAddr, then the
// UTF-8 payload it points to.
func (i *Instance) readDescribedPayload(descAddr uint32) ([]byte, error) {
	mem := i.module.Memory()

	descBuf, ok := mem.Read(descAddr, abi.DescriptorSize)
	if !ok {
		return nil, errors.Errorf("descriptor read at %d falls outside guest memory", descAddr)
	}
	desc, err := abi.DecodeDescriptor(descBuf, 0)
	if err != nil {
		return nil, err
	}

	payload, ok := mem.Read(desc.Ptr, desc.Len)
	if !ok {
		return nil, errors.Errorf("payload read at (%d, %d) falls outside guest memory", desc.Ptr, desc.Len)
	}
	if !utf8.Valid(payload) {
		return nil, errors.New("guest payload is not valid UTF-8")
	}

	// Copy: the returned slice aliases guest memory, which the caller may
	// deallocate out from under us.
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// Info returns the guest's cached self-description. It is pure with respect
// to guest state and may be called repeatedly.
func (i *Instance) Info() envelope.PackageInfo { return i.info }

// IsLocal reports whether this instance was loaded from a local filesystem
// path, as opposed to a registry. It is the provenance flag behind the rule
// that a remotely-sourced package may not load a further local package
// (§7); nothing in this repository consults it.
func (i *Instance) IsLocal() bool { return i.isLocal }

// Generate runs the full input/output round trip described in §4.3. A guest
// that returns a well-formed Err envelope yields an Ok return here holding
// that Err variant; this method's own error return is reserved for ABI-level
// failures (missing exports, failed guest calls, out-of-bounds memory
// access). A payload that isn't valid UTF-8 or a parseable Result envelope
// is returned as a synthetic Err result with a nil error.
func (i *Instance) Generate(ctx context.Context, inputYAML string) (envelope.ResultDoc, error) {
	allocFn := i.module.ExportedFunction(i.names.Alloc)
	if allocFn == nil {
		return envelope.ResultDoc{}, errors.Errorf("package guest module does not export %q", i.names.Alloc)
	}
	genFn := i.module.ExportedFunction(i.names.Generate)
	if genFn == nil {
		return envelope.ResultDoc{}, errors.Errorf("package guest module does not export %q", i.names.Generate)
	}
	deallocFn := i.module.ExportedFunction(i.names.Dealloc)
	if deallocFn == nil {
		return envelope.ResultDoc{}, errors.Errorf("package guest module does not export %q", i.names.Dealloc)
	}

	input := []byte(inputYAML)

	allocResults, err := allocFn.Call(ctx, uint64(len(input)))
	if err != nil {
		return envelope.ResultDoc{}, errors.Wrapf(err, "cannot call %q", i.names.Alloc)
	}
	inputPtr := uint32(allocResults[0])

	var descPtr, outPtr, outLen uint32
	haveDesc, haveOut := false, false

	// Scoped release block: every guest allocation this call causes to
	// exist is freed here, on every exit path, in the order payload,
	// descriptor, input. Each deallocation is best-effort and never masks
	// the primary return value.
	defer func() {
		if haveOut {
			if _, err := deallocFn.Call(ctx, uint64(outPtr), uint64(outLen)); err != nil {
				i.log.Info("Failed to deallocate guest output buffer", "error", err)
			}
		}
		if haveDesc {
			if _, err := deallocFn.Call(ctx, uint64(descPtr), abi.DescriptorSize); err != nil {
				i.log.Info("Failed to deallocate guest output descriptor", "error", err)
			}
		}
		if _, err := deallocFn.Call(ctx, uint64(inputPtr), uint64(len(input))); err != nil {
			i.log.Info("Failed to deallocate guest input buffer", "error", err)
		}
	}()

	if !i.module.Memory().Write(inputPtr, input) {
		return envelope.ResultDoc{}, errors.Errorf("input write at (%d, %d) falls outside guest memory", inputPtr, len(input))
	}

	genResults, err := genFn.Call(ctx, uint64(inputPtr), uint64(len(input)))
	if err != nil {
		return envelope.ResultDoc{}, errors.Wrapf(err, "cannot call %q", i.names.Generate)
	}
	if len(genResults) != 1 {
		return envelope.ResultDoc{}, errors.Errorf("%q returned %d results, expected 1", i.names.Generate, len(genResults))
	}
	descPtr = uint32(genResults[0])
	haveDesc = true

	descBuf, ok := i.module.Memory().Read(descPtr, abi.DescriptorSize)
	if !ok {
		return envelope.ResultDoc{}, errors.Errorf("descriptor read at %d falls outside guest memory", descPtr)
	}
	desc, err := abi.DecodeDescriptor(descBuf, 0)
	if err != nil {
		return envelope.ResultDoc{}, err
	}
	outPtr, outLen = desc.Ptr, desc.Len
	haveOut = true

	payload, ok := i.module.Memory().Read(outPtr, outLen)
	if !ok {
		return envelope.ResultDoc{}, errors.Errorf("payload read at (%d, %d) falls outside guest memory", outPtr, outLen)
	}
	if !utf8.Valid(payload) {
		return envelope.NewErrResultDoc(errors.Errorf("guest returned non-UTF-8 output (%d bytes)", len(payload)).Error()), nil
	}

	// ParseResultDoc never returns a hard error: an unparseable payload
	// becomes a synthetic Err result carrying the payload as context.
	result, _ := envelope.ParseResultDoc(payload)
	return result, nil
}

// Close tears down the guest's runtime store. Every caller defers this once
// it is done with the Instance, transitioning it to the Destroyed state of
// §4.3's state machine.
func (i *Instance) Close(ctx context.Context) error {
	return errors.Wrap(i.runtime.Close(ctx), "cannot close package host runtime")
}
