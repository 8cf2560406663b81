package valuetags

import (
	"regexp"
	"sort"
	"strings"
)

const (
	Action   = "action"
	Decision = "decision"
	Question = "question"
	Metric   = "metric"
	Deadline = "deadline"
)

var (
	reNum      = regexp.MustCompile(`\b\d+(?:[\.,]\d+)?\s*(?:%|k|m|ms|s|h|hours?|minutes?|days?|weeks?|usd|\$|eur)?\b`)
	reAction   = regexp.MustCompile(`(?i)\b(todo|to-do|action item|follow up|follow-up|i will|we will|i'll|we'll|need to|needs to|assign(?:ed)?|take care of)\b|待办|跟进|负责`)
	reDecision = regexp.MustCompile(`(?i)\b(decided|decision|agreed|we agree|let's go with|approved|sign(?:ed)? off)\b|决定|同意|确定`)
	reDeadline = regexp.MustCompile(`(?i)\b(deadline|due|by (?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|tomorrow|next week|end of (?:day|week|month))|eod|eow)\b|截止|之前完成`)
	reQuestion = regexp.MustCompile(`[?？]`)
)

// Tag returns the sorted value tags detected in text. The heuristic is
// deterministic and cheap; it only flags text worth a closer look.
func Tag(text string) []string {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil
	}

	set := map[string]struct{}{}
	if reAction.MatchString(t) {
		set[Action] = struct{}{}
	}
	if reDecision.MatchString(t) {
		set[Decision] = struct{}{}
	}
	if reDeadline.MatchString(t) {
		set[Deadline] = struct{}{}
	}
	// a couple of questions make a segment interactive, one is noise
	if len(reQuestion.FindAllStringIndex(t, -1)) >= 2 {
		set[Question] = struct{}{}
	}
	if len(reNum.FindAllStringIndex(t, -1)) >= 2 {
		set[Metric] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
