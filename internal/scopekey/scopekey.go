// Package scopekey derives the per-scope directory component used to
// namespace stage results, loop packs, readmaps/writemaps, and actions
// payloads.
package scopekey

import "regexp"

var nonToken = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

func sanitize(s string) string {
	return trimJunk(nonToken.ReplaceAllString(s, "_"))
}

func trimJunk(s string) string {
	start, end := 0, len(s)
	for start < end && isJunk(s[start]) {
		start++
	}
	for end > start && isJunk(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isJunk(c byte) bool {
	return c == '.' || c == '_' || c == '-'
}

// Resolve is a deterministic, idempotent function of (workItem, ticket):
// sanitize workItem; if that yields nothing, fall back to sanitized
// ticket; if that too is empty, "ticket".
func Resolve(workItem, ticket string) string {
	if sanitized := sanitize(workItem); sanitized != "" {
		return sanitized
	}
	if sanitized := sanitize(ticket); sanitized != "" {
		return sanitized
	}
	return "ticket"
}

// ResolveForQA always derives the scope key from the ticket, never the
// work item, matching the QA stage's ticket-scoped artifact layout.
func ResolveForQA(ticket string) string {
	if sanitized := sanitize(ticket); sanitized != "" {
		return sanitized
	}
	return "ticket"
}
