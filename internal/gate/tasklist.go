package gate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var aiddSectionPattern = regexp.MustCompile(`(?m)^<!--\s*AIDD:([A-Z0-9_]+)\s*-->`)
var iterationIDPattern = regexp.MustCompile(`(?m)^\s*-\s+\[[ xX]\]\s+iteration_id=(\S+)`)
var next3PlaceholderPattern = regexp.MustCompile(`(?i)^(TBD|placeholder|—|-)?$`)

var requiredAiddSections = []string{"NEXT_3", "ITERATIONS_FULL", "QA_TRACEABILITY"}

// TasklistCheck validates the tasklist's required AIDD:* sections, numbered
// iteration consistency, and that AIDD:NEXT_3 carries at least one real item.
// With Status: READY it blocks when the AIDD:QA_TRACEABILITY section mentions
// "pending" or "unmet"; rows with any other status text are not checked.
func TasklistCheck(ctx context.Context, p Params) Result {
	if result, skipped := filterByBranch("tasklist", p.Branch, p.Config.BranchAllow, p.Config.BranchSkip); skipped {
		return result
	}

	docPath := filepath.Join(p.WorkflowRoot, "docs", "tasklist", p.Ticket+".md")
	data, err := os.ReadFile(docPath)
	if err != nil {
		if os.IsNotExist(err) {
			return block("tasklist", fmt.Sprintf("tasklist not found at %s; run `tasks-new %s` first", relPath(p.WorkflowRoot, docPath), p.Ticket))
		}
		return block("tasklist", err.Error())
	}
	content := string(data)

	present := map[string]bool{}
	for _, m := range aiddSectionPattern.FindAllStringSubmatch(content, -1) {
		present[m[1]] = true
	}
	for _, name := range requiredAiddSections {
		if !present[name] {
			return block("tasklist", fmt.Sprintf("missing required AIDD:%s section", name))
		}
	}

	next3 := sectionBody(content, "NEXT_3")
	if !hasNonPlaceholderItem(next3) {
		return block("tasklist", "AIDD:NEXT_3 has no non-placeholder items")
	}

	iterationsFull := sectionBody(content, "ITERATIONS_FULL")
	ids := iterationIDPattern.FindAllStringSubmatch(iterationsFull, -1)
	seen := map[int]bool{}
	for _, m := range ids {
		n, err := strconv.Atoi(strings.TrimPrefix(m[1], "I"))
		if err == nil {
			seen[n] = true
		}
	}
	for n := 1; n <= len(seen); n++ {
		if !seen[n] {
			return block("tasklist", fmt.Sprintf("iteration numbering is not contiguous: missing iteration %d", n))
		}
	}

	statusMatch := statusLinePattern.FindStringSubmatch(content)
	if statusMatch != nil && strings.EqualFold(statusMatch[1], "READY") {
		traceability := sectionBody(content, "QA_TRACEABILITY")
		if strings.Contains(strings.ToLower(traceability), "pending") || strings.Contains(strings.ToLower(traceability), "unmet") {
			return block("tasklist", "Status is READY but AIDD:QA_TRACEABILITY has unmet rows")
		}
	}

	return ok("tasklist", fmt.Sprintf("tasklist gate passed: %d iterations", len(seen)))
}

func sectionBody(content, name string) string {
	start := regexp.MustCompile(`(?m)^<!--\s*AIDD:` + name + `\s*-->`).FindStringIndex(content)
	if start == nil {
		return ""
	}
	rest := content[start[1]:]
	if end := aiddSectionPattern.FindStringIndex(rest); end != nil {
		return rest[:end[0]]
	}
	return rest
}

func hasNonPlaceholderItem(section string) bool {
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		trimmed = strings.TrimPrefix(trimmed, "[ ]")
		trimmed = strings.TrimPrefix(trimmed, "[x]")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == "" {
			continue
		}
		if next3PlaceholderPattern.MatchString(trimmed) {
			continue
		}
		return true
	}
	return false
}
