// Package looppack parses and renders Loop Pack files: Markdown documents
// carrying a YAML front-matter block (schema aidd.loop_pack.v1) that
// summarizes the boundaries, required commands, and required tests for a
// work item's current scope.
package looppack

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Schema is the only front-matter schema this package understands.
const Schema = "aidd.loop_pack.v1"

// Boundaries lists the path globs a loop stage's edits must stay within or
// outside of.
type Boundaries struct {
	AllowedPaths   []string `yaml:"allowed_paths"`
	ForbiddenPaths []string `yaml:"forbidden_paths"`
}

// Pack is the parsed front matter of a loop pack file.
type Pack struct {
	Schema           string     `yaml:"schema"`
	UpdatedAt        string     `yaml:"updated_at"`
	Ticket           string     `yaml:"ticket"`
	WorkItemID       string     `yaml:"work_item_id"`
	WorkItemKey      string     `yaml:"work_item_key"`
	ScopeKey         string     `yaml:"scope_key"`
	Boundaries       Boundaries `yaml:"boundaries"`
	CommandsRequired []string   `yaml:"commands_required"`
	TestsRequired    []string   `yaml:"tests_required"`
	EvidencePolicy   string     `yaml:"evidence_policy"`

	Body string `yaml:"-"`
}

const frontMatterDelim = "---"

// Parse splits a loop pack document into its YAML front matter and
// Markdown body.
func Parse(document string) (*Pack, error) {
	lines := strings.Split(document, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontMatterDelim {
		return nil, fmt.Errorf("looppack: missing front matter delimiter")
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontMatterDelim {
			end = i
			break
		}
	}
	if end == -1 {
		return nil, fmt.Errorf("looppack: unterminated front matter")
	}

	frontMatter := strings.Join(lines[1:end], "\n")
	body := strings.Join(lines[end+1:], "\n")

	var pack Pack
	if err := yaml.Unmarshal([]byte(frontMatter), &pack); err != nil {
		return nil, fmt.Errorf("looppack: parse front matter: %w", err)
	}
	pack.Body = strings.TrimPrefix(body, "\n")
	return &pack, nil
}

// Load reads and parses a loop pack file from disk.
func Load(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("looppack: read %s: %w", path, err)
	}
	return Parse(string(data))
}

// Render serializes pack back into front-matter + body form.
func Render(pack *Pack) (string, error) {
	data, err := yaml.Marshal(pack)
	if err != nil {
		return "", fmt.Errorf("looppack: marshal front matter: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(frontMatterDelim + "\n")
	sb.Write(data)
	sb.WriteString(frontMatterDelim + "\n")
	sb.WriteString(pack.Body)
	return sb.String(), nil
}
