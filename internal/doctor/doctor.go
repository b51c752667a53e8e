// Package doctor bundles a ticket's failure context — active state,
// latest stage result, loop run log tail, readmap/writemap, and tasklist
// handoff markers — into one deterministic printable report. Adapted
// from the teacher's diagnose-a-failed-phase idiom: kept the
// context-bundling structure (config+log+feedback+timing), dropped the
// `claude -p` diagnosis call entirely — Non-goals exclude LLM inference.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aidd-dev/aidd-orc/internal/accessmap"
	"github.com/aidd-dev/aidd-orc/internal/activestate"
	"github.com/aidd-dev/aidd-orc/internal/scopekey"
)

const maxLogLines = 200

// Diagnose gathers failure context for ticket and renders it as one
// report string.
func Diagnose(workflowRoot, ticket string, state activestate.State) (string, error) {
	if ticket == "" {
		return "", fmt.Errorf("doctor: no active ticket and none supplied")
	}

	scope := scopekey.Resolve(state.WorkItem, ticket)

	var b strings.Builder
	fmt.Fprintf(&b, "== doctor: %s (stage=%s scope=%s) ==\n\n", ticket, orNone(state.Stage), orNone(scope))

	fmt.Fprintf(&b, "-- active state --\n")
	fmt.Fprintf(&b, "ticket=%s slug_hint=%s stage=%s work_item=%s updated_at=%s\n\n",
		state.Ticket, orNone(state.SlugHint), orNone(state.Stage), orNone(state.WorkItem), orNone(state.UpdatedAt))

	fmt.Fprintf(&b, "-- latest stage result --\n%s\n\n", gatherLatestStageResult(workflowRoot, ticket, scope))

	fmt.Fprintf(&b, "-- loop run log (last %d lines) --\n%s\n\n", maxLogLines, gatherLoopLog(workflowRoot, ticket))

	fmt.Fprintf(&b, "-- readmap / writemap --\n%s\n\n", gatherAccessMaps(workflowRoot, ticket, scope))

	fmt.Fprintf(&b, "-- tasklist handoff markers --\n%s\n", gatherHandoffMarkers(workflowRoot, ticket))

	return b.String(), nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func gatherLatestStageResult(workflowRoot, ticket, scope string) string {
	if scope == "" {
		return "(no scope key resolved)"
	}
	dir := filepath.Join(workflowRoot, "reports", "loops", ticket, scope)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "(no stage results found)"
	}
	var latest string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "stage.") && strings.HasSuffix(e.Name(), ".result.json") {
			latest = e.Name()
		}
	}
	if latest == "" {
		return "(no stage results found)"
	}
	data, err := os.ReadFile(filepath.Join(dir, latest))
	if err != nil {
		return fmt.Sprintf("(error reading %s: %v)", latest, err)
	}
	return string(data)
}

func gatherLoopLog(workflowRoot, ticket string) string {
	path := filepath.Join(workflowRoot, "reports", "loops", ticket, "loop.run.log")
	data, err := os.ReadFile(path)
	if err != nil {
		return "(no loop.run.log found)"
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > maxLogLines {
		lines = lines[len(lines)-maxLogLines:]
	}
	return strings.Join(lines, "\n")
}

func gatherAccessMaps(workflowRoot, ticket, scope string) string {
	if scope == "" {
		return "(no scope key resolved)"
	}
	readmap, rerr := accessmap.LoadReadmap(workflowRoot, ticket, scope)
	writemap, werr := accessmap.LoadWritemap(workflowRoot, ticket, scope)
	var parts []string
	if rerr == nil {
		parts = append(parts, fmt.Sprintf("readmap: %d entries, %d allowed_paths", len(readmap.Entries), len(readmap.AllowedPaths)))
	}
	if werr == nil {
		parts = append(parts, fmt.Sprintf("writemap: %d entries, %d write_blocks", len(writemap.Entries), len(writemap.WriteBlocks)))
	}
	if len(parts) == 0 {
		return "(none found)"
	}
	return strings.Join(parts, "\n")
}

func gatherHandoffMarkers(workflowRoot, ticket string) string {
	data, err := os.ReadFile(filepath.Join(workflowRoot, "docs", "tasklist", ticket+".md"))
	if err != nil {
		return "(no tasklist found)"
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.Contains(line, "handoff:qa") {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	if len(lines) == 0 {
		return "(none)"
	}
	return strings.Join(lines, "\n")
}
