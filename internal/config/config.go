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

// Package config reads and writes the persisted MistletoeConfig envelope
// that tracks the user's configured registries.
package config

import (
	"os"
	"path/filepath"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// APIVersion is the fixed apiVersion of the config envelope.
	APIVersion = "mistletoe.dev/v1alpha1"
	// Kind is the fixed kind of the config envelope.
	Kind = "MistletoeConfig"

	// FileName is the name of the config file inside the home directory.
	FileName = "config.yaml"

	// HomeEnvVar names the environment variable that overrides the default
	// home location.
	HomeEnvVar = "MIST_HOME_LOCATION"

	defaultHomeDirName = ".mistletoe"
)

const (
	errUnknownRemoteVariant = "remote %q has no recognized variant (expected one of: git)"
)

// GitRemote is the only RemoteLayout variant currently defined.
type GitRemote struct {
	URL string `yaml:"url"`
}

// Remote is a one-variant-open sum type: today only Git is populated. A
// remote with neither a recognized variant key present is a parse error.
type Remote struct {
	Name string     `yaml:"name"`
	Git  *GitRemote `yaml:"git,omitempty"`
}

// Registry is one configured package registry.
type Registry struct {
	Name           string   `yaml:"name"`
	DefaultRemote  string   `yaml:"defaultRemote"`
	Remotes        []Remote `yaml:"remotes"`
}

// Spec is the config envelope's body.
type Spec struct {
	Registries []Registry `yaml:"registries"`
}

// Config is the parsed MistletoeConfig document.
type Config struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Spec       Spec   `yaml:"spec"`
}

type rawDoc struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Spec       struct {
		Registries []struct {
			Name          string `yaml:"name"`
			DefaultRemote string `yaml:"defaultRemote"`
			Remotes       []struct {
				Name string     `yaml:"name"`
				Git  *GitRemote `yaml:"git"`
			} `yaml:"remotes"`
		} `yaml:"registries"`
	} `yaml:"spec"`
}

// Home resolves the mistletoe home directory: MIST_HOME_LOCATION if set,
// otherwise <user-home>/.mistletoe.
func Home() (string, error) {
	if v := os.Getenv(HomeEnvVar); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "cannot determine user home directory")
	}
	return filepath.Join(home, defaultHomeDirName), nil
}

// Path resolves the full path of the config file under home.
func Path(home string) string {
	return filepath.Join(home, FileName)
}

// Load reads and parses the config file at home. A missing file yields an
// empty Config (zero registries), not an error.
func Load(home string) (Config, error) {
	raw, err := os.ReadFile(Path(home)) //nolint:gosec // home is resolved by our own Home function or a user-supplied override.
	if os.IsNotExist(err) {
		return Config{APIVersion: APIVersion, Kind: Kind}, nil
	}
	if err != nil {
		return Config{}, errors.Wrap(err, "cannot read config file")
	}

	var doc rawDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, errors.Wrap(err, "cannot parse config file")
	}

	cfg := Config{APIVersion: doc.APIVersion, Kind: doc.Kind}
	for _, r := range doc.Spec.Registries {
		reg := Registry{Name: r.Name, DefaultRemote: r.DefaultRemote}
		for _, rem := range r.Remotes {
			if rem.Git == nil {
				return Config{}, errors.Errorf(errUnknownRemoteVariant, rem.Name)
			}
			reg.Remotes = append(reg.Remotes, Remote{Name: rem.Name, Git: rem.Git})
		}
		cfg.Spec.Registries = append(cfg.Spec.Registries, reg)
	}
	return cfg, nil
}

// Save serializes cfg and writes it to home, creating the home directory if
// necessary.
func Save(home string, cfg Config) error {
	if cfg.APIVersion == "" {
		cfg.APIVersion = APIVersion
	}
	if cfg.Kind == "" {
		cfg.Kind = Kind
	}

	if err := os.MkdirAll(home, 0o750); err != nil {
		return errors.Wrap(err, "cannot create mistletoe home directory")
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "cannot marshal config file")
	}

	if err := os.WriteFile(Path(home), out, 0o600); err != nil {
		return errors.Wrap(err, "cannot write config file")
	}
	return nil
}

// FindRegistry returns the registry named name, or false if it isn't
// configured.
func (c Config) FindRegistry(name string) (Registry, bool) {
	for _, r := range c.Spec.Registries {
		if r.Name == name {
			return r, true
		}
	}
	return Registry{}, false
}

// UpsertRegistry adds reg, replacing any existing registry of the same name.
func (c *Config) UpsertRegistry(reg Registry) {
	for i, r := range c.Spec.Registries {
		if r.Name == reg.Name {
			c.Spec.Registries[i] = reg
			return
		}
	}
	c.Spec.Registries = append(c.Spec.Registries, reg)
}

// RemoveRegistry deletes the registry named name, reporting whether it was
// present.
func (c *Config) RemoveRegistry(name string) bool {
	for i, r := range c.Spec.Registries {
		if r.Name == name {
			c.Spec.Registries = append(c.Spec.Registries[:i], c.Spec.Registries[i+1:]...)
			return true
		}
	}
	return false
}
