package snapshot

import (
	"regexp"
	"strings"

	"github.com/livetrack/livetrack/internal/core"
)

var (
	storyByPattern    = regexp.MustCompile(`(?i)story by\s+([^\s,]+)`)
	possessivePattern = regexp.MustCompile(`(?i)^\s*([^\s']+?)(?:'|\x{2019})s story`)
	handleChars       = regexp.MustCompile(`[^a-zA-Z0-9._]`)
	alphanumeric      = regexp.MustCompile(`[a-zA-Z0-9]`)
)

// ExtractIdentity recovers a handle from an accessibility label such as
// "Story by alice, seen" or "alice's story". "Story by" may appear anywhere
// in the label. Labels without either shape fall back to their first token.
// ok is false when no letter or digit survives sanitizing.
func ExtractIdentity(label string) (core.Identity, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}

	var candidate string
	if m := storyByPattern.FindStringSubmatch(label); m != nil {
		candidate = m[1]
	} else if m := possessivePattern.FindStringSubmatch(label); m != nil {
		candidate = m[1]
	} else {
		candidate = strings.Fields(label)[0]
	}

	candidate = handleChars.ReplaceAllString(candidate, "")
	if !alphanumeric.MatchString(candidate) {
		return "", false
	}
	return core.Identity(candidate), true
}

// ExtractAll runs ExtractIdentity over labels, dropping the ones that yield
// nothing. Duplicates collapse in the resulting set.
func ExtractAll(labels []string) (core.ObservedSet, []string) {
	set := core.NewObservedSet()
	var rejected []string
	for _, label := range labels {
		id, ok := ExtractIdentity(label)
		if !ok {
			rejected = append(rejected, label)
			continue
		}
		set[id] = struct{}{}
	}
	return set, rejected
}
