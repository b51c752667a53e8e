// Package accessmap loads the Readmap/Writemap JSON documents the Hook
// Policy consults on every tool call to decide whether a path is allowed.
package accessmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ReadmapSchema and WritemapSchema are the only schema versions this
// engine writes or reads.
const (
	ReadmapSchema  = "aidd.readmap.v1"
	WritemapSchema = "aidd.writemap.v1"
)

// Map is the shared shape of both Readmap and Writemap documents.
type Map struct {
	Schema           string   `json:"schema"`
	Entries          []string `json:"entries"`
	AllowedPaths     []string `json:"allowed_paths"`
	LoopAllowedPaths []string `json:"loop_allowed_paths"`
	DocOpsOnlyPaths  []string `json:"docops_only_paths"`
	AlwaysAllow      []string `json:"always_allow"`
	WriteBlocks      []string `json:"write_blocks"`
}

func path(workflowRoot, ticket, scopeKey, kind string) string {
	return filepath.Join(workflowRoot, "reports", "context", ticket, scopeKey+"."+kind+".json")
}

// LoadReadmap loads <scope>.readmap.json, returning an empty (deny-all)
// map if it does not yet exist.
func LoadReadmap(workflowRoot, ticket, scopeKey string) (Map, error) {
	return load(path(workflowRoot, ticket, scopeKey, "readmap"))
}

// LoadWritemap loads <scope>.writemap.json, returning an empty (deny-all)
// map if it does not yet exist.
func LoadWritemap(workflowRoot, ticket, scopeKey string) (Map, error) {
	return load(path(workflowRoot, ticket, scopeKey, "writemap"))
}

func load(p string) (Map, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Map{}, nil
		}
		return Map{}, fmt.Errorf("accessmap: read %s: %w", p, err)
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return Map{}, fmt.Errorf("accessmap: parse %s: %w", p, err)
	}
	return m, nil
}
