package ui

import (
	"sort"
	"strings"

	twmerge "github.com/Oudwins/tailwind-merge-go"
)

// ClassMap is an ordered list of conditional classes. Use it instead of a
// map[string]bool when fragment order matters for conflict resolution.
type ClassMap []ClassToggle

type ClassToggle struct {
	Class string
	On    bool
}

// ClassNames flattens class fragments into one class attribute value.
//
// Accepted fragments: string, []string, []any, map[string]bool, ClassMap,
// and nil/false/"" which are skipped. Conflicting utilities resolve in favor
// of the later fragment and every class appears at most once.
func ClassNames(fragments ...any) string {
	var tokens []string
	for _, fragment := range fragments {
		tokens = appendFragment(tokens, fragment)
	}
	if len(tokens) == 0 {
		return ""
	}

	merged := strings.Fields(twmerge.Merge(strings.Join(tokens, " ")))
	return strings.Join(dedupeKeepLast(merged), " ")
}

func appendFragment(tokens []string, fragment any) []string {
	switch v := fragment.(type) {
	case nil:
		return tokens
	case bool:
		return tokens
	case string:
		return append(tokens, strings.Fields(v)...)
	case []string:
		for _, s := range v {
			tokens = append(tokens, strings.Fields(s)...)
		}
		return tokens
	case []any:
		for _, nested := range v {
			tokens = appendFragment(tokens, nested)
		}
		return tokens
	case map[string]bool:
		keys := make([]string, 0, len(v))
		for k, on := range v {
			if on {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			tokens = append(tokens, strings.Fields(k)...)
		}
		return tokens
	case ClassMap:
		for _, toggle := range v {
			if toggle.On {
				tokens = append(tokens, strings.Fields(toggle.Class)...)
			}
		}
		return tokens
	default:
		return tokens
	}
}

func dedupeKeepLast(classes []string) []string {
	last := make(map[string]int, len(classes))
	for i, c := range classes {
		last[c] = i
	}
	out := make([]string, 0, len(last))
	for i, c := range classes {
		if last[c] == i {
			out = append(out, c)
		}
	}
	return out
}
