// Package stagelexicon defines the closed set of canonical stage names and
// the loop-stage subsets used by active-state normalization, the gate
// engine, and the loop runner.
package stagelexicon

// Stages is the closed set of canonical stage names a command may resolve
// to or an Active State document may record.
var Stages = map[string]bool{
	"idea":           true,
	"research":       true,
	"plan":           true,
	"review-spec":    true,
	"spec-interview": true,
	"tasklist":       true,
	"implement":      true,
	"review":         true,
	"qa":             true,
	"status":         true,
	"review-plan":    true,
	"review-prd":     true,
}

// NarrowLoopStages is the work-item normalization loop-stage set used by
// Active State: only implement/review require an iteration_id work item.
var NarrowLoopStages = map[string]bool{
	"implement": true,
	"review":    true,
}

// BroadLoopStages additionally includes qa and status — stages in which
// the Hook Policy applies strict readmap/writemap enforcement, a superset
// of the narrow work-item-shape rule.
var BroadLoopStages = map[string]bool{
	"implement": true,
	"review":    true,
	"qa":        true,
	"status":    true,
}

// PlanningStages are the pre-implementation stages that never carry a
// work_item of iteration_id= shape.
var PlanningStages = map[string]bool{
	"idea":           true,
	"research":       true,
	"plan":           true,
	"review-spec":    true,
	"spec-interview": true,
	"tasklist":       true,
}

// CanonicalStages lists the stages in their natural lifecycle order, for
// display purposes (status/watch rendering).
var CanonicalStages = []string{
	"idea", "research", "plan", "review-spec", "spec-interview",
	"tasklist", "implement", "review", "qa",
}

// IsValid reports whether name is a recognized canonical stage.
func IsValid(name string) bool {
	return Stages[name]
}
