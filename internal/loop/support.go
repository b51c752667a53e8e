package loop

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/aidd-dev/aidd-orc/internal/reviewpack"
	"github.com/aidd-dev/aidd-orc/internal/scopekey"
	"github.com/aidd-dev/aidd-orc/internal/workflowroot"
)

func resolveRootsForCwd(cwd string) (workflowroot.Roots, error) {
	return workflowroot.RequireWorkflowRoot(cwd)
}

func resolveScopeKey(workItem, ticket string) string {
	return scopekey.Resolve(workItem, ticket)
}

func validateReviewPack(workflowRoot, ticket, scopeKey, verdict string, requireV2 bool) error {
	return reviewpack.Validate(workflowRoot, ticket, scopeKey, verdict, requireV2)
}

var next3ItemPattern = regexp.MustCompile(`(?m)^\s*-\s+\[ \]\s+iteration_id=(\S+)`)
var iterationsFullItemPattern = regexp.MustCompile(`(?m)^\s*-\s+\[([ xX])\]\s+iteration_id=(\S+)`)
var aiddHeaderPattern = regexp.MustCompile(`(?m)^<!--\s*AIDD:([A-Z0-9_]+)\s*-->`)

// SelectNextWorkItem finds the first open iteration outside
// currentScopeKey, preferring references listed in AIDD:NEXT_3 over a
// linear scan of AIDD:ITERATIONS_FULL.
func SelectNextWorkItem(workflowRoot, ticket, currentScopeKey string) (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(workflowRoot, "docs", "tasklist", ticket+".md"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("loop: read tasklist: %w", err)
	}
	content := string(data)

	next3 := section(content, "NEXT_3")
	for _, m := range next3ItemPattern.FindAllStringSubmatch(next3, -1) {
		id := m[1]
		if scopekey.Resolve("iteration_id="+id, ticket) != currentScopeKey {
			return id, true, nil
		}
	}

	full := section(content, "ITERATIONS_FULL")
	type item struct {
		n    int
		id   string
		done bool
	}
	var items []item
	for _, m := range iterationsFullItemPattern.FindAllStringSubmatch(full, -1) {
		done := strings.EqualFold(m[1], "x")
		id := m[2]
		n, _ := strconv.Atoi(strings.TrimPrefix(id, "I"))
		items = append(items, item{n: n, id: id, done: done})
	}
	for _, it := range items {
		if it.done {
			continue
		}
		if scopekey.Resolve("iteration_id="+it.id, ticket) == currentScopeKey {
			continue
		}
		return it.id, true, nil
	}
	return "", false, nil
}

func section(content, name string) string {
	start := regexp.MustCompile(`(?m)^<!--\s*AIDD:` + name + `\s*-->`).FindStringIndex(content)
	if start == nil {
		return ""
	}
	rest := content[start[1]:]
	if end := aiddHeaderPattern.FindStringIndex(rest); end != nil {
		return rest[:end[0]]
	}
	return rest
}
