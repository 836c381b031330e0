// Package safety provides command filtering, confirmation, and audit logging
// for UPS device actions.
package safety

import "path/filepath"

// Filter decides which instant commands of a UPS are offered to users. Both
// lists hold glob patterns (as understood by filepath.Match) over wire
// command names, e.g. "shutdown.*".
//
// Rules:
//   - If both lists are empty (or nil), every command is allowed.
//   - Denylist always takes priority over the allowlist.
//   - If a non-empty allowlist is present, a command must match at least one
//     allowlist pattern to be permitted (after the denylist check).
type Filter struct {
	allowlist []string
	denylist  []string
}

// NewFilter constructs a Filter from the provided allowlist and denylist
// pattern slices. Either or both may be nil or empty.
func NewFilter(allowlist, denylist []string) *Filter {
	return &Filter{
		allowlist: allowlist,
		denylist:  denylist,
	}
}

// IsAllowed reports whether command is permitted by this filter. A nil
// filter allows everything.
func (f *Filter) IsAllowed(command string) bool {
	if f == nil {
		return true
	}
	if matchAny(f.denylist, command) {
		return false
	}
	if len(f.allowlist) == 0 {
		return true
	}
	return matchAny(f.allowlist, command)
}

// Apply returns the members of commands the filter permits, preserving order.
func (f *Filter) Apply(commands []string) []string {
	out := make([]string, 0, len(commands))
	for _, c := range commands {
		if f.IsAllowed(c) {
			out = append(out, c)
		}
	}
	return out
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if matchGlob(pattern, name) {
			return true
		}
	}
	return false
}

// matchGlob returns true when name matches the given glob pattern.
// filepath.Match errors (malformed patterns) are treated as non-matching.
func matchGlob(pattern, name string) bool {
	matched, err := filepath.Match(pattern, name)
	if err != nil {
		return false
	}
	return matched
}
