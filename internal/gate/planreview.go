package gate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var openActionItemPattern = regexp.MustCompile(`(?m)^\s*-\s+\[ \]`)

func reviewSectionGate(name, docPath, sectionHeader, approvedStatus string, p Params) Result {
	if result, skipped := filterByBranch(name, p.Branch, p.Config.BranchAllow, p.Config.BranchSkip); skipped {
		return result
	}
	if isSelfEdit(p.FilePath, docPath) {
		return skip(name, "file is plan/prd being edited")
	}

	data, err := os.ReadFile(docPath)
	if err != nil {
		if os.IsNotExist(err) {
			return block(name, fmt.Sprintf("%s not found", relPath(filepath.Dir(docPath), docPath)))
		}
		return block(name, err.Error())
	}
	content := string(data)

	headerPattern := regexp.MustCompile(`(?im)^#+\s*` + regexp.QuoteMeta(sectionHeader) + `\s*$`)
	loc := headerPattern.FindStringIndex(content)
	if loc == nil {
		return block(name, fmt.Sprintf("no %q section found", sectionHeader))
	}
	section := content[loc[1]:]
	if next := regexp.MustCompile(`(?m)^#+\s`).FindStringIndex(section); next != nil {
		section = section[:next[0]]
	}

	statusMatch := statusLinePattern.FindStringSubmatch(section)
	if statusMatch == nil {
		return block(name, fmt.Sprintf("no Status: line found in %q section", sectionHeader))
	}
	status := strings.ToUpper(statusMatch[1])
	if status != strings.ToUpper(approvedStatus) {
		return block(name, fmt.Sprintf("%q section Status is %q, expected %q", sectionHeader, statusMatch[1], approvedStatus))
	}

	if openActionItemPattern.MatchString(section) {
		return block(name, fmt.Sprintf("%q section has unresolved action items", sectionHeader))
	}

	return ok(name, fmt.Sprintf("%s passed: status=%s", name, status))
}

// PlanReviewGate requires the plan's "## Plan Review" section to be
// approved (default status READY) with no open action items. Skipped when
// the file being edited is the plan itself.
func PlanReviewGate(ctx context.Context, p Params) Result {
	docPath := filepath.Join(p.WorkflowRoot, "docs", "plan", p.Ticket+".md")
	status := p.Config.PlanReviewStatus
	if status == "" {
		status = "READY"
	}
	return reviewSectionGate("plan-review", docPath, "Plan Review", status, p)
}
