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

// Package renderer converts a successful guest Result into raw, concatenated
// YAML, or an on-disk directory, optionally injecting install-tracking
// labels into every manifest.
package renderer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/gsfraley/mistletoe/internal/envelope"
	"github.com/gsfraley/mistletoe/internal/install"
)

// Mode is one of the three output modes named by the -o flag.
type Mode int

// The three output modes.
const (
	ModeRaw Mode = iota
	ModeYAML
	ModeDir
)

const dirModePrefix = "dir="

const (
	errProcessIncompatibleWithRaw = "--process is incompatible with -o raw"
	errNotAMapping                = "misformatted YAML: document is not a mapping"
)

// Parse parses an -o flag value into a Mode and, for dir mode, the target
// directory path.
func Parse(spec string) (Mode, string, error) {
	switch {
	case spec == "" || spec == "raw":
		return ModeRaw, "", nil
	case spec == "yaml":
		return ModeYAML, "", nil
	case strings.HasPrefix(spec, dirModePrefix):
		path := strings.TrimPrefix(spec, dirModePrefix)
		if path == "" {
			return ModeRaw, "", errors.New("dir mode requires a path, in the form dir=<path>")
		}
		return ModeDir, path, nil
	default:
		return ModeRaw, "", errors.Errorf("unrecognized output mode %q, want raw, yaml or dir=<path>", spec)
	}
}

// Render emits result according to mode. process requests install-tracking
// label injection, valid only in ModeYAML and ModeDir. An Err result
// propagates as an error in every mode; an Ok result's optional message is
// printed to stderr before any file content.
func Render(w, stderr io.Writer, result envelope.ResultDoc, mode Mode, dirPath string, process bool, identity install.Identity) error {
	if process && mode == ModeRaw {
		return errors.New(errProcessIncompatibleWithRaw)
	}

	if !result.IsOk() {
		return errors.New(result.Err.Message)
	}

	if result.Ok.Message != nil {
		fmt.Fprintln(stderr, *result.Ok.Message)
	}

	switch mode {
	case ModeRaw:
		raw, err := result.Serialize()
		if err != nil {
			return errors.Wrap(err, "cannot serialize result envelope")
		}
		_, err = w.Write(raw)
		return errors.Wrap(err, "cannot write raw result output")
	case ModeYAML:
		concatenated, err := concatenateFiles(result, process, identity)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, concatenated)
		return errors.Wrap(err, "cannot write yaml output")
	case ModeDir:
		return writeDir(dirPath, result, process, identity)
	default:
		return errors.Errorf("unknown output mode %d", mode)
	}
}

// Manifests renders result's files, force-injecting identity's install
// labels into every document, and parses the labeled output into the
// unstructured objects the Installation Tracker applies. Document order
// matches file-then-top-to-bottom order (§5's ordering guarantee).
func Manifests(result envelope.ResultDoc, identity install.Identity) ([]*unstructured.Unstructured, error) {
	if !result.IsOk() {
		return nil, errors.New(result.Err.Message)
	}

	concatenated, err := concatenateFiles(result, true, identity)
	if err != nil {
		return nil, err
	}

	var out []*unstructured.Unstructured
	for _, doc := range strings.Split(concatenated, "\n---\n") {
		if strings.TrimSpace(doc) == "" {
			continue
		}
		var parsed map[string]any
		if err := sigsyaml.Unmarshal([]byte(doc), &parsed); err != nil {
			return nil, errors.Wrap(err, errNotAMapping)
		}
		out = append(out, &unstructured.Unstructured{Object: parsed})
	}
	return out, nil
}

func concatenateFiles(result envelope.ResultDoc, process bool, identity install.Identity) (string, error) {
	if result.Ok.Files == nil {
		return "", nil
	}

	var parts []string
	for _, k := range result.Ok.Files.Keys() {
		v, _ := result.Ok.Files.Get(k)
		content, _ := v.(string)
		parts = append(parts, content)
	}

	concatenated := strings.Join(parts, "\n---\n")
	if !process {
		return concatenated, nil
	}
	return injectLabels(concatenated, identity)
}

func writeDir(dirPath string, result envelope.ResultDoc, process bool, identity install.Identity) error {
	if result.Ok.Files == nil {
		return nil
	}

	for _, k := range result.Ok.Files.Keys() {
		v, _ := result.Ok.Files.Get(k)
		content, _ := v.(string)

		if process {
			processed, err := injectLabels(content, identity)
			if err != nil {
				return err
			}
			content = processed
		}

		path := filepath.Join(dirPath, k)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return errors.Wrapf(err, "cannot create directory for %q", k)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			return errors.Wrapf(err, "cannot write file %q", k)
		}
	}
	return nil
}

// injectLabels splits concatenated on the document separator, parses each
// non-empty document as a mapping, sets its install-identity labels, and
// re-joins the re-serialized documents with the same separator.
func injectLabels(concatenated string, identity install.Identity) (string, error) {
	docs := strings.Split(concatenated, "\n---\n")

	var out []string
	for _, doc := range docs {
		if strings.TrimSpace(doc) == "" {
			out = append(out, doc)
			continue
		}

		var parsed map[string]any
		if err := sigsyaml.Unmarshal([]byte(doc), &parsed); err != nil {
			return "", errors.Wrap(err, errNotAMapping)
		}
		if parsed == nil {
			return "", errors.New(errNotAMapping)
		}

		setLabels(parsed, identity.Labels())

		serialized, err := sigsyaml.Marshal(parsed)
		if err != nil {
			return "", errors.Wrap(err, "cannot re-serialize labeled document")
		}
		out = append(out, strings.TrimSuffix(string(serialized), "\n"))
	}

	return strings.Join(out, "\n---\n"), nil
}

func setLabels(doc map[string]any, labels map[string]string) {
	metaVal, ok := doc["metadata"]
	var meta map[string]any
	if ok {
		meta, ok = metaVal.(map[string]any)
	}
	if !ok || meta == nil {
		meta = map[string]any{}
	}

	labelsVal, ok := meta["labels"]
	var labelsMap map[string]any
	if ok {
		labelsMap, ok = labelsVal.(map[string]any)
	}
	if !ok || labelsMap == nil {
		labelsMap = map[string]any{}
	}

	for k, v := range labels {
		labelsMap[k] = v
	}

	meta["labels"] = labelsMap
	doc["metadata"] = meta
}
