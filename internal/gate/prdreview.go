package gate

import (
	"context"
	"path/filepath"
)

// PRDReviewGate is the PRD-side parallel to PlanReviewGate: requires a
// "## PRD Review" section approved per the configured status with no open
// action items. Skipped when the file being edited is the PRD itself.
func PRDReviewGate(ctx context.Context, p Params) Result {
	docPath := filepath.Join(p.WorkflowRoot, "docs", "prd", p.Ticket+".prd.md")
	status := p.Config.PRDReviewStatus
	if status == "" {
		status = "READY"
	}
	return reviewSectionGate("prd-review", docPath, "PRD Review", status, p)
}
