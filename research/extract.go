package research

import "strings"

// ExtractLearnings parses free-text model output into discrete findings.
// A line qualifies if, after trimming, it starts with a bullet marker
// ('*' or '-'); the marker and separating whitespace are stripped and empty
// remainders dropped. Output order matches order of appearance. The parser
// is deliberately permissive: model output only loosely follows the
// bulleted-list instruction and extraction must not fail when it doesn't.
func ExtractLearnings(content string) []string {
	var learnings []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "*") && !strings.HasPrefix(line, "-") {
			continue
		}
		learning := strings.TrimSpace(strings.TrimLeft(line, "*- "))
		if learning != "" {
			learnings = append(learnings, learning)
		}
	}
	return learnings
}
