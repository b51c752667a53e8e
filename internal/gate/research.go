package gate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var researchPathRefPattern = regexp.MustCompile(`(?m)^\s*[-*]\s+\x60[^\x60]+\x60`)

// ResearchCheck validates the ticket's research baseline: status line,
// a minimum count of referenced source paths, and freshness against the
// configured staleness window. A missing baseline is a skip, not a block
// — research may not have run yet for early stages.
func ResearchCheck(ctx context.Context, p Params) Result {
	if result, skipped := filterByBranch("research", p.Branch, p.Config.BranchAllow, p.Config.BranchSkip); skipped {
		return result
	}

	researchPath := filepath.Join(p.WorkflowRoot, "docs", "research", p.Ticket+".md")
	info, err := os.Stat(researchPath)
	if err != nil {
		if os.IsNotExist(err) {
			return skip("research", "pending-baseline")
		}
		return block("research", err.Error())
	}

	data, err := os.ReadFile(researchPath)
	if err != nil {
		return block("research", err.Error())
	}
	content := string(data)

	statusMatch := statusLinePattern.FindStringSubmatch(content)
	if statusMatch == nil {
		return block("research", "no Status: line found in research doc")
	}
	status := strings.ToUpper(statusMatch[1])
	if !validStatuses[status] {
		return block("research", fmt.Sprintf("research Status %q is not recognized", statusMatch[1]))
	}

	pathRefs := researchPathRefPattern.FindAllString(content, -1)
	if len(pathRefs) == 0 {
		return block("research", "research doc references no source paths")
	}

	if p.Config.ResearchFreshnessDays > 0 {
		age := time.Since(info.ModTime())
		maxAge := time.Duration(p.Config.ResearchFreshnessDays) * 24 * time.Hour
		if age > maxAge {
			return block("research", fmt.Sprintf("research doc is %d days old, exceeds freshness window of %d days", int(age.Hours()/24), p.Config.ResearchFreshnessDays))
		}
	}

	return ok("research", fmt.Sprintf("research gate passed: status=%s, %d path references", status, len(pathRefs)))
}
