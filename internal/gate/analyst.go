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

var dialogHeaderPattern = regexp.MustCompile(`(?im)^#+\s*(?:\d+\.\s*)?(analyst dialogue|dialog analyst|диалог analyst)\s*$`)
var questionPattern = regexp.MustCompile(`(?im)^\s*Question\s+(\d+)\s*:`)
var answerPattern = regexp.MustCompile(`(?im)^\s*Answer\s+(\d+)\s*:`)
var statusLinePattern = regexp.MustCompile(`(?im)^\s*Status:\s*(\S+)\s*$`)
var openQuestionsHeaderPattern = regexp.MustCompile(`(?im)^#+\s*Open Questions\s*$`)

var validStatuses = map[string]bool{
	"READY":   true,
	"BLOCKED": true,
	"PENDING": true,
	"DRAFT":   true,
}

// AnalystCheck validates the PRD's analyst dialogue section: a dialog
// header, contiguous Question/Answer numbering with full coverage, a
// recognized Status line, an empty Open Questions section when status is
// READY, and a required cross-reference to the ticket's research doc.
func AnalystCheck(ctx context.Context, p Params) Result {
	if result, skipped := filterByBranch("analyst", p.Branch, p.Config.BranchAllow, p.Config.BranchSkip); skipped {
		return result
	}

	prdPath := filepath.Join(p.WorkflowRoot, "docs", "prd", p.Ticket+".prd.md")
	data, err := os.ReadFile(prdPath)
	if err != nil {
		if os.IsNotExist(err) {
			return block("analyst", fmt.Sprintf("PRD not found at %s; run `plan-new %s` first", relPath(p.WorkflowRoot, prdPath), p.Ticket))
		}
		return block("analyst", err.Error())
	}
	content := string(data)

	loc := dialogHeaderPattern.FindStringIndex(content)
	if loc == nil {
		return block("analyst", "no analyst dialogue section found in PRD")
	}
	section := content[loc[1]:]
	if nextHeader := regexp.MustCompile(`(?m)^#+\s`).FindStringIndex(section); nextHeader != nil {
		section = section[:nextHeader[0]]
	}

	questions := map[int]bool{}
	for _, m := range questionPattern.FindAllStringSubmatch(section, -1) {
		n, _ := strconv.Atoi(m[1])
		questions[n] = true
	}
	answers := map[int]bool{}
	for _, m := range answerPattern.FindAllStringSubmatch(section, -1) {
		n, _ := strconv.Atoi(m[1])
		answers[n] = true
	}

	if len(questions) < p.Config.AnalystMinQuestions {
		return block("analyst", fmt.Sprintf("only %d analyst questions found, need at least %d", len(questions), p.Config.AnalystMinQuestions))
	}

	for n := 1; n <= len(questions); n++ {
		if !questions[n] {
			return block("analyst", fmt.Sprintf("analyst questions are not contiguous: missing Question %d", n))
		}
		if !answers[n] {
			return block("analyst", fmt.Sprintf("Question %d has no matching Answer %d", n, n))
		}
	}

	statusMatch := statusLinePattern.FindStringSubmatch(content)
	if statusMatch == nil {
		return block("analyst", "no Status: line found in PRD")
	}
	status := strings.ToUpper(statusMatch[1])
	if !validStatuses[status] {
		return block("analyst", fmt.Sprintf("PRD Status %q is not one of READY, BLOCKED, PENDING, DRAFT", statusMatch[1]))
	}

	if status == "READY" {
		if loc := openQuestionsHeaderPattern.FindStringIndex(content); loc != nil {
			rest := content[loc[1]:]
			if nextHeader := regexp.MustCompile(`(?m)^#+\s`).FindStringIndex(rest); nextHeader != nil {
				rest = rest[:nextHeader[0]]
			}
			if strings.TrimSpace(rest) != "" {
				return block("analyst", "PRD Status is READY but Open Questions section is not empty")
			}
		}
	}

	researchRef := "docs/research/" + p.Ticket + ".md"
	if !strings.Contains(content, researchRef) {
		return block("analyst", fmt.Sprintf("PRD must cross-reference %s", researchRef))
	}

	return ok("analyst", fmt.Sprintf("analyst gate passed: %d questions, status=%s", len(questions), status))
}

func relPath(root, target string) string {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return target
	}
	return rel
}
