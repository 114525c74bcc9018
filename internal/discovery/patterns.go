package discovery

import "regexp"

// Chatroom ids live in several places in a channel page: embedded JSON,
// pusher topic names, data attributes, meta tags. Structured patterns run
// first; the bare numeric heuristic runs last because it can only tell a
// chatroom id apart from other ids by digit count.
var structuredPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)"chatroom":\s*\{\s*[^}]*"id":\s*(\d+)`),
	regexp.MustCompile(`(?i)"chatroom_id":\s*(\d+)`),
	regexp.MustCompile(`(?i)chatrooms\.(\d+)\.v2`),
	regexp.MustCompile(`(?i)chatroom_(\d+)`),
	regexp.MustCompile(`(?i)"data-chatroom-id":\s*"(\d+)"`),
	regexp.MustCompile(`(?i)<meta[^>]*chatroom[^>]*content="(\d+)"`),
	regexp.MustCompile(`(?i)chatroomId["\s]*[:=]["\s]*(\d+)`),
}

var numericHeuristic = regexp.MustCompile(`(?i)"id":\s*(\d{8,})`)

const (
	minStructuredDigits = 6
	minHeuristicValue   = 10000000
)

// ExtractChatroomID scans page markup for a chatroom id. Structured matches
// need at least six digits; the numeric heuristic needs eight and a value
// above ten million, to keep small ids like user or badge ids out.
func ExtractChatroomID(html string) (string, bool) {
	for _, pattern := range structuredPatterns {
		m := pattern.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		if len(m[1]) >= minStructuredDigits {
			return m[1], true
		}
	}

	for _, m := range numericHeuristic.FindAllStringSubmatch(html, -1) {
		id := m[1]
		if len(id) >= 8 && numericValueAbove(id, minHeuristicValue) {
			return id, true
		}
	}
	return "", false
}

// numericValueAbove compares a decimal string against a threshold without
// overflow worries on very long ids.
func numericValueAbove(id string, threshold int) bool {
	if len(id) > 18 {
		return true
	}
	var n int64
	for _, r := range id {
		n = n*10 + int64(r-'0')
	}
	return n > int64(threshold)
}
