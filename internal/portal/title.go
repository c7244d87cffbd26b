package portal

import "strings"

// titleBreaks are the characters a truncated title may end on
const titleBreaks = "。、！？!?,."

// TruncateTitle shortens title to at most max runes. When the hard cut contains a
// sentence or pause mark that keeps at least half of max, the title ends there instead.
func TruncateTitle(title string, max int) string {
	runes := []rune(title)
	if max <= 0 || len(runes) <= max {
		return title
	}

	cut := runes[:max]
	for i := len(cut) - 1; i >= 0; i-- {
		if !strings.ContainsRune(titleBreaks, cut[i]) {
			continue
		}
		if float64(i+1) >= float64(max)*0.5 {
			return string(cut[:i+1])
		}
		break
	}
	return string(cut)
}
