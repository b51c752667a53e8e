package ux

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/aidd-dev/aidd-orc/internal/activestate"
	"github.com/aidd-dev/aidd-orc/internal/stagelexicon"
)

// RenderStatus prints the active-workflow-state display for a ticket:
// current stage, work item, feature slug, and the names of the entries
// under reports/loops/<ticket>/.
func RenderStatus(workflowRoot string, state activestate.State, ticket string) {
	fmt.Printf("%sTicket:%s    %s\n", Bold, Reset, ticket)
	if state.Stage == "" {
		fmt.Printf("%sStage:%s     %s(none — not yet dispatched)%s\n", Bold, Reset, Dim, Reset)
	} else {
		fmt.Printf("%sStage:%s     %s\n", Bold, Reset, state.Stage)
	}
	if state.WorkItem != "" {
		fmt.Printf("%sWork item:%s %s\n", Bold, Reset, state.WorkItem)
	}
	if state.SlugHint != "" {
		fmt.Printf("%sSlug:%s      %s\n", Bold, Reset, state.SlugHint)
	}
	fmt.Printf("%sUpdated:%s   %s\n", Bold, Reset, state.UpdatedAt)

	fmt.Printf("\n%sLoop reports:%s\n", Bold, Reset)
	reportsDir := filepath.Join(workflowRoot, "reports", "loops", ticket)
	entries, err := os.ReadDir(reportsDir)
	if err != nil {
		fmt.Printf("  %s(none)%s\n", Dim, Reset)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		fmt.Printf("  %s(none)%s\n", Dim, Reset)
		return
	}
	for _, n := range names {
		fmt.Printf("  %s/%s\n", reportsDir, n)
	}
	fmt.Println()
}

// CanonicalStagesHint prints the fixed stage lexicon, marking the current
// one, for use in `status --verbose`-style output.
func CanonicalStagesHint(current string) {
	fmt.Printf("\n%sStages:%s ", Bold, Reset)
	for i, s := range stagelexicon.CanonicalStages {
		marker := s
		if s == current {
			marker = Yellow + "[" + s + "]" + Reset
		}
		fmt.Print(marker)
		if i != len(stagelexicon.CanonicalStages)-1 {
			fmt.Print(" → ")
		}
	}
	fmt.Println()
}
