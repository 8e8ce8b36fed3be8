package job

import (
	"regexp"
	"strings"
)

var (
	uwiStrip = regexp.MustCompile(`[^a-z0-9,|]`)
	listSep  = regexp.MustCompile(`[,|]`)
)

// ParseUWIInput turns free-form well identifier input into unique lowercase
// tokens, keeping first-seen order. Tokens are separated by commas or pipes.
func ParseUWIInput(input string) []string {
	cleaned := uwiStrip.ReplaceAllString(strings.ToLower(input), "")
	return uniqueTokens(listSep.Split(cleaned, -1))
}

// ParseCurveInput splits curve names the same way but keeps their characters.
func ParseCurveInput(input string) []string {
	return uniqueTokens(listSep.Split(strings.ToLower(input), -1))
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if strings.TrimSpace(t) == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// UWIItems wraps each identifier in a {"uwi": ...} payload record.
func UWIItems(uwis []string) []any {
	items := make([]any, 0, len(uwis))
	for _, u := range uwis {
		items = append(items, map[string]any{"uwi": u})
	}
	return items
}
