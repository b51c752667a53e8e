// Package activestate persists the single-writer Active State document
// (<workflow_root>/docs/.active.json) and implements the loop-stage
// work-item normalization rules.
package activestate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aidd-dev/aidd-orc/internal/stagelexicon"
)

// State is the Active State document.
type State struct {
	Ticket             string `json:"ticket"`
	SlugHint           string `json:"slug_hint"`
	Stage              string `json:"stage"`
	WorkItem           string `json:"work_item"`
	LastReviewReportID string `json:"last_review_report_id"`
	UpdatedAt          string `json:"updated_at"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,80}$`)
var iterationItemPattern = regexp.MustCompile(`^iteration_id=.+$`)
var handoffItemPattern = regexp.MustCompile(`^id=.+$`)

func activeStatePath(workflowRoot string) string {
	return filepath.Join(workflowRoot, "docs", ".active.json")
}

// Read loads the Active State document, returning an empty record if the
// file is missing or malformed.
func Read(workflowRoot string) State {
	data, err := os.ReadFile(activeStatePath(workflowRoot))
	if err != nil {
		return State{}
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}
	}
	return st
}

// ReadActiveTicket is a narrow convenience used by the dispatcher when it
// only needs the ticket.
func ReadActiveTicket(workflowRoot string) string {
	return Read(workflowRoot).Ticket
}

// Update merges the provided fields over the current state using
// "nil means keep, empty string means clear" semantics, applies loop-stage
// work-item normalization, and writes the result atomically.
type Update struct {
	Ticket   *string
	SlugHint *string
	Stage    *string
	WorkItem *string
}

// Write applies update to the current state and persists it.
func Write(workflowRoot string, update Update, now func() time.Time) (State, error) {
	current := Read(workflowRoot)
	next := current

	if update.Ticket != nil {
		next.Ticket = *update.Ticket
	}
	if update.SlugHint != nil {
		next.SlugHint = *update.SlugHint
	}
	if update.Stage != nil {
		next.Stage = *update.Stage
	}

	requestedWorkItem := current.WorkItem
	if update.WorkItem != nil {
		requestedWorkItem = *update.WorkItem
	}

	normalizedWorkItem, reviewID := NormalizeWorkItemForStage(next.Stage, requestedWorkItem, current.WorkItem)
	next.WorkItem = normalizedWorkItem
	if reviewID != "" {
		next.LastReviewReportID = reviewID
	} else if !stagelexicon.NarrowLoopStages[next.Stage] {
		next.LastReviewReportID = ""
	}

	next.UpdatedAt = now().UTC().Format(time.RFC3339)

	if err := writeJSONAtomic(activeStatePath(workflowRoot), next); err != nil {
		return State{}, err
	}
	return next, nil
}

// NormalizeWorkItemForStage applies the Active State invariant: in
// implement/review, work_item must match iteration_id=…; a requested
// id=… (handoff/review reference) keeps the current iteration and is
// surfaced separately rather than replacing the work item.
func NormalizeWorkItemForStage(stage, requested, current string) (workItem string, reviewOrHandoffID string) {
	if requested == "" {
		if !stagelexicon.NarrowLoopStages[stage] {
			return "", ""
		}
		return current, ""
	}

	if !isValidWorkItemKey(requested) {
		return "", ""
	}

	if !stagelexicon.NarrowLoopStages[stage] {
		return requested, ""
	}

	if iterationItemPattern.MatchString(requested) {
		return requested, ""
	}

	// requested is id=… (handoff/review reference) inside a loop stage.
	id := strings.TrimPrefix(requested, "id=")
	if iterationItemPattern.MatchString(current) {
		return current, id
	}
	return "", id
}

func isValidWorkItemKey(s string) bool {
	return iterationItemPattern.MatchString(s) || handoffItemPattern.MatchString(s)
}

// NormalizeSlug reduces free text to a single [a-z0-9][a-z0-9-]{0,80}
// token, or "" if no valid token can be extracted. It never lower-cases
// and truncates an arbitrary sentence into a slug.
func NormalizeSlug(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	candidate := strings.ToLower(fields[0])
	if slugPattern.MatchString(candidate) {
		return candidate
	}
	return ""
}

// WriteIdentifiers sets ticket and slug hint, normalizing the slug, and
// unless suppressed, seeds docs/prd/<ticket>.prd.md from the template if
// the target file does not already exist.
func WriteIdentifiers(workflowRoot, ticket, slugHint string, scaffoldPRD bool, now func() time.Time) (State, error) {
	normalizedSlug := NormalizeSlug(slugHint)
	t := ticket
	s := normalizedSlug
	state, err := Write(workflowRoot, Update{Ticket: &t, SlugHint: &s}, now)
	if err != nil {
		return State{}, err
	}

	if scaffoldPRD && ticket != "" {
		if err := seedPRDTemplate(workflowRoot, ticket); err != nil {
			return state, err
		}
	}
	return state, nil
}

func seedPRDTemplate(workflowRoot, ticket string) error {
	templatePath := filepath.Join(workflowRoot, "docs", "prd", "template.md")
	targetPath := filepath.Join(workflowRoot, "docs", "prd", ticket+".prd.md")

	if _, err := os.Stat(targetPath); err == nil {
		return nil // already exists, never overwrite
	}

	src, err := os.Open(templatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // no template to seed from
		}
		return fmt.Errorf("activestate: read prd template: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("activestate: mkdir prd dir: %w", err)
	}

	dst, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("activestate: create prd file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("activestate: seed prd file: %w", err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("activestate: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("activestate: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("activestate: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("activestate: rename: %w", err)
	}
	return nil
}
