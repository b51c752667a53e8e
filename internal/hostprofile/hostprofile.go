// Package hostprofile maps host-IDE command syntax (Kimi, Codex, Cursor) to
// canonical stage commands and resolves per-host skills directories and
// runtime limits.
package hostprofile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Profile is the sole source of runtime limits and command-syntax rules for
// a given host IDE.
type Profile struct {
	Name              string
	CommandLeaders    []string
	CommandNamespaces []string
	SkillsDirs        []string
	TimeoutSec        int
	MaxStdoutBytes    int
	MaxStderrBytes    int
	EnvOverrides      map[string]string
}

var builtins = map[string]Profile{
	"kimi": {
		Name:              "kimi",
		CommandLeaders:    []string{"/"},
		CommandNamespaces: []string{"aidd", "flow"},
		SkillsDirs:        []string{"~/.kimi/skills", ".kimi/skills"},
		TimeoutSec:        900,
		MaxStdoutBytes:    1 << 20,
		MaxStderrBytes:    1 << 19,
		EnvOverrides:      map[string]string{},
	},
	"codex": {
		Name:              "codex",
		CommandLeaders:    []string{"$", "/"},
		CommandNamespaces: []string{"aidd", "flow"},
		SkillsDirs:        []string{"~/.codex/skills", ".codex/skills"},
		TimeoutSec:        900,
		MaxStdoutBytes:    1 << 20,
		MaxStderrBytes:    1 << 19,
		EnvOverrides:      map[string]string{},
	},
	"cursor": {
		Name:              "cursor",
		CommandLeaders:    []string{"/"},
		CommandNamespaces: []string{"aidd", "flow"},
		SkillsDirs:        []string{"~/.cursor/skills", ".cursor/skills"},
		TimeoutSec:        900,
		MaxStdoutBytes:    1 << 20,
		MaxStderrBytes:    1 << 19,
		EnvOverrides:      map[string]string{},
	},
}

var nameFixer = strings.NewReplacer("_", "-")

func normalizeName(name string) string {
	return nameFixer.Replace(strings.ToLower(strings.TrimSpace(name)))
}

// ResolveProfile looks up a profile by name. An empty name consults
// AIDD_IDE_PROFILE and defaults to "kimi". An unknown name is an error
// listing the sorted supported set.
func ResolveProfile(name string) (Profile, error) {
	if strings.TrimSpace(name) == "" {
		if env := os.Getenv("AIDD_IDE_PROFILE"); env != "" {
			name = env
		} else {
			name = "kimi"
		}
	}
	norm := normalizeName(name)
	p, ok := builtins[norm]
	if !ok {
		names := make([]string, 0, len(builtins))
		for k := range builtins {
			names = append(names, k)
		}
		sort.Strings(names)
		return Profile{}, fmt.Errorf("unknown host profile %q; supported: %s", name, strings.Join(names, ", "))
	}
	return p, nil
}

// StripHostPrefix removes a host command leader and namespace prefix,
// returning the canonical command tail.
func StripHostPrefix(command string, profile Profile) string {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return ""
	}
	for _, leader := range profile.CommandLeaders {
		if leader != "" && strings.HasPrefix(trimmed, leader) {
			trimmed = strings.TrimSpace(trimmed[len(leader):])
			break
		}
	}
	if trimmed == "" {
		return ""
	}
	if idx := strings.Index(trimmed, ":"); idx >= 0 {
		prefix, suffix := trimmed[:idx], trimmed[idx+1:]
		for _, ns := range profile.CommandNamespaces {
			if prefix == ns {
				return strings.TrimSpace(suffix)
			}
		}
	}
	if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
		prefix := trimmed[:idx]
		for _, ns := range profile.CommandNamespaces {
			if prefix == ns {
				return strings.TrimSpace(trimmed[idx+1:])
			}
		}
	}
	return trimmed
}

// SelectProfile chooses a profile for a command line. Priority: explicit
// argument, then the command's leading-character heuristic ("$" => codex),
// then env AIDD_IDE_PROFILE/AIDD_HOST, then single-installed-skills-dir
// autodetection, finally the "kimi" default.
func SelectProfile(command string, explicit string) (Profile, error) {
	if strings.TrimSpace(explicit) != "" {
		return ResolveProfile(explicit)
	}
	trimmed := strings.TrimSpace(command)
	if strings.HasPrefix(trimmed, "$") {
		return ResolveProfile("codex")
	}
	if env := os.Getenv("AIDD_IDE_PROFILE"); env != "" {
		return ResolveProfile(env)
	}
	if env := os.Getenv("AIDD_HOST"); env != "" {
		return ResolveProfile(env)
	}
	if name, ok := autodetectSingleInstalled(); ok {
		return ResolveProfile(name)
	}
	return ResolveProfile("kimi")
}

func autodetectSingleInstalled() (string, bool) {
	var found []string
	names := make([]string, 0, len(builtins))
	for k := range builtins {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		p := builtins[name]
		for _, dir := range p.SkillsDirs {
			if dirExists(expandHome(dir)) {
				found = append(found, name)
				break
			}
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return "", false
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DiscoverSkillsDirs resolves the skills directories for a profile,
// honoring AIDD_SKILLS_DIRS overrides when allowed.
func DiscoverSkillsDirs(profile Profile, includeMissing, allowEnvOverride bool) []string {
	var raw []string
	if allowEnvOverride {
		if env := os.Getenv("AIDD_SKILLS_DIRS"); env != "" {
			raw = strings.Split(env, string(os.PathListSeparator))
		}
	}
	if raw == nil {
		raw = profile.SkillsDirs
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		expanded := expandHome(entry)
		if seen[expanded] {
			continue
		}
		seen[expanded] = true
		if !includeMissing && !dirExists(expanded) {
			continue
		}
		out = append(out, expanded)
	}
	return out
}
