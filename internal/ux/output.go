// Package ux renders the CLI's timestamped, colorized progress output —
// stage headers, completions, loop-back notices, tool-gate prompts — the
// same terse ANSI idiom the teacher used for its phase runner, now keyed
// on stages instead of config-driven phases.
package ux

import (
	"fmt"
	"strings"
	"time"
)

// ANSI color helpers
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
)

func timestamp() string {
	return time.Now().Format("15:04:05")
}

// StageHeader prints a timestamped stage header.
func StageHeader(stage, ticket string) {
	fmt.Printf("\n%s[%s]%s %s══════════════════════════════════════%s\n",
		Dim, timestamp(), Reset, Cyan, Reset)
	fmt.Printf("%s[%s]%s  %sStage %s — %s%s\n",
		Dim, timestamp(), Reset, Bold, stage, ticket, Reset)
	fmt.Printf("%s[%s]%s %s══════════════════════════════════════%s\n",
		Dim, timestamp(), Reset, Cyan, Reset)
}

// StageComplete prints a stage completion message.
func StageComplete(stage string, duration time.Duration) {
	m := int(duration.Minutes())
	s := int(duration.Seconds()) % 60
	fmt.Printf("%s[%s]%s  %s✓ Stage %s complete (%dm %02ds)%s\n",
		Dim, timestamp(), Reset, Green, stage, m, s, Reset)
}

// StageFail prints a stage failure message.
func StageFail(stage, errMsg string) {
	fmt.Printf("%s[%s]%s  %s✗ Stage %s failed: %s%s\n",
		Dim, timestamp(), Reset, Red, stage, errMsg, Reset)
}

// StageBlocked prints a gate-blocked message with its reason code.
func StageBlocked(stage, reasonCode, reason string) {
	fmt.Printf("%s[%s]%s  %s⊘ Stage %s blocked (%s): %s%s\n",
		Dim, timestamp(), Reset, Yellow, stage, reasonCode, reason, Reset)
}

// ResumeHint prints a resume command hint.
func ResumeHint(ticket string) {
	fmt.Printf("\n%sResume:%s aidd-orc loop %s\n", Yellow, Reset, ticket)
}

// LoopBack prints a loop-back message for revise cycles.
func LoopBack(fromStage, toStage string, iteration, max int) {
	fmt.Printf("%s[%s]%s  %s↺ Stage %q requested revision. Looping back to %q (iteration %d/%d)%s\n",
		Dim, timestamp(), Reset, Yellow, fromStage, toStage, iteration, max, Reset)
}

// StageSkip prints a stage skip message.
func StageSkip(stage string) {
	fmt.Printf("%s[%s]%s  %s– Stage %s skipped%s\n",
		Dim, timestamp(), Reset, Dim, stage, Reset)
}

// ToolUse prints an inline tool call.
func ToolUse(name, input string) {
	summary := input
	if len(summary) > 80 {
		summary = summary[:77] + "..."
	}
	fmt.Printf("  %s⚡ %s%s %s\n", Cyan, name, Reset, summary)
}

// ToolDenied prints a denied tool call.
func ToolDenied(name, input string) {
	summary := input
	if len(summary) > 80 {
		summary = summary[:77] + "..."
	}
	fmt.Printf("  %s✗ %s(denied)%s %s\n", Red, name, Reset, summary)
}

// PermissionPrompt prints a permission denial prompt header.
func PermissionPrompt(tools []string) {
	fmt.Printf("\n  %s⚠ Tools denied: %s%s\n", Yellow, strings.Join(tools, ", "), Reset)
}

// Success prints a final success message.
func Success(ticket string) {
	fmt.Printf("\n%s[%s]%s  %s%s══ %s shipped ══%s\n\n",
		Dim, timestamp(), Reset, Bold, Green, ticket, Reset)
}
