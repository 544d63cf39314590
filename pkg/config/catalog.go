// Copyright 2025 Kadir Pekel
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

// Package config loads the provider-wiring surface of spec §6: YAML
// catalogs mapping a provider alias to {type, ...provider args}, one file
// each for chat models, embeddings, and stores. This is deliberately a
// different loading path from pkg/workspace's plain encoding/json: the
// workspace contract is a handful of fixed-shape files, while provider
// catalogs are operator-editable, environment-varying configuration —
// exactly what koanf's layered loading exists for (teacher:
// pkg/config/koanf_loader.go).
package config

import (
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/mapstructure"

	"github.com/loomrun/loom/pkg/errs"
)

// rawEntry is one alias's catalog entry before its type-specific fields
// are decoded — the same tagged-union shape
// workspace.ContextEntryManifest uses for context.json, applied here to
// koanf's decoded map instead of encoding/json's.
type rawEntry struct {
	Type   string
	Params map[string]any
}

// loadCatalog reads path as YAML and splits each top-level alias entry
// into its "type" discriminator and the remaining provider args.
func loadCatalog(path string) (map[string]rawEntry, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "config", "failed to load provider catalog "+path, err)
	}

	raw := k.Raw()
	out := make(map[string]rawEntry, len(raw))
	for alias, v := range raw {
		entry, ok := v.(map[string]any)
		if !ok {
			return nil, errs.New(errs.KindConfig, "config", "provider catalog entry "+alias+" is not a mapping")
		}
		typ, _ := entry["type"].(string)
		params := make(map[string]any, len(entry))
		for field, value := range entry {
			if field == "type" {
				continue
			}
			params[field] = value
		}
		out[alias] = rawEntry{Type: typ, Params: params}
	}
	return out, nil
}

func decodeInto(params map[string]any, target any) error {
	return mapstructure.Decode(params, target)
}
