// Package reviewpack validates the review stage's additional artifact: the
// review pack file emitted alongside the stage result, and the fix-plan
// JSON required when the reviewer's verdict is REVISE.
package reviewpack

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SchemaV1 and SchemaV2 are the two review-pack schema versions a reviewer
// may emit; V2 is required only when the workflow's gates.json sets
// require_review_pack_v2.
const (
	SchemaV1 = "aidd.review_pack.v1"
	SchemaV2 = "aidd.review_pack.v2"
)

type packHeader struct {
	Schema string `json:"schema"`
}

// PackPath returns the canonical review pack path for a scope.
func PackPath(workflowRoot, ticket, scopeKey string) string {
	return filepath.Join(workflowRoot, "reports", "loops", ticket, scopeKey, "review.latest.pack.md")
}

// FixPlanPath returns the canonical fix-plan path for a scope.
func FixPlanPath(workflowRoot, ticket, scopeKey string) string {
	return filepath.Join(workflowRoot, "reports", "loops", ticket, scopeKey, "review.fix_plan.json")
}

// Validate checks that the review pack at the canonical path carries an
// acceptable schema (v2 is mandatory when requireV2 is set), and, when
// verdict is REVISE, that a fix-plan JSON exists.
func Validate(workflowRoot, ticket, scopeKey, verdict string, requireV2 bool) error {
	packPath := PackPath(workflowRoot, ticket, scopeKey)
	schema, err := readFrontMatterSchema(packPath)
	if err != nil {
		return fmt.Errorf("reviewpack: %w", err)
	}

	switch schema {
	case SchemaV2:
		// always acceptable
	case SchemaV1:
		if requireV2 {
			return fmt.Errorf("reviewpack: schema %s found but %s is required", SchemaV1, SchemaV2)
		}
	default:
		return fmt.Errorf("reviewpack: unrecognized schema %q in %s", schema, packPath)
	}

	if verdict == "REVISE" {
		fixPlanPath := FixPlanPath(workflowRoot, ticket, scopeKey)
		if _, err := os.Stat(fixPlanPath); err != nil {
			return fmt.Errorf("reviewpack: verdict=REVISE but fix plan missing at %s", fixPlanPath)
		}
	}
	return nil
}

// readFrontMatterSchema extracts the "schema:" value from a review pack's
// YAML front matter without requiring a full YAML parse — the review pack
// body is treated as opaque Markdown by this engine.
func readFrontMatterSchema(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var header packHeader
	// Review packs may carry either a JSON sidecar or YAML front matter;
	// try JSON first (cheap, and some producers emit .json packs).
	if json.Unmarshal(data, &header) == nil && header.Schema != "" {
		return header.Schema, nil
	}
	return scanYAMLSchemaLine(string(data)), nil
}

func scanYAMLSchemaLine(doc string) string {
	const prefix = "schema:"
	for _, line := range strings.Split(doc, "\n") {
		trimmed := trimQuotesAndSpace(line)
		if strings.HasPrefix(trimmed, prefix) {
			return trimQuotesAndSpace(trimmed[len(prefix):])
		}
	}
	return ""
}

// trimQuotesAndSpace trims whitespace and surrounding quote characters, in
// either order, from both ends — a YAML scalar's "schema:" value may be
// quoted, unquoted, or padded with either.
func trimQuotesAndSpace(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '"' || r == '\''
	})
}
