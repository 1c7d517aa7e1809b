package convert

import (
	"strings"
	"time"
)

// SplitPages cuts markdown on the page-break placeholder. Chunks are
// trimmed of surrounding whitespace.
func SplitPages(markdown, pageBreak string) []string {
	parts := strings.Split(markdown, pageBreak)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// Align maps chunks onto exactly pages slots. Missing trailing pages get
// empty chunks; surplus chunks are folded into the final page, joined by
// blank lines.
func Align(chunks []string, pages int) []string {
	if pages <= 0 {
		return nil
	}

	out := make([]string, pages)
	switch {
	case len(chunks) <= pages:
		copy(out, chunks)
	default:
		copy(out, chunks[:pages-1])
		tail := make([]string, 0, len(chunks)-pages+1)
		for _, c := range chunks[pages-1:] {
			if c != "" {
				tail = append(tail, c)
			}
		}
		out[pages-1] = strings.Join(tail, "\n\n")
	}
	return out
}

// PageTiming is the synthesized extraction window of one page.
type PageTiming struct {
	Start time.Time
	End   time.Time
}

// SpreadTiming divides the conversion window evenly across pages.
func SpreadTiming(start time.Time, total time.Duration, pages int) []PageTiming {
	if pages <= 0 {
		return nil
	}

	per := total / time.Duration(pages)
	out := make([]PageTiming, pages)
	for i := range out {
		s := start.Add(per * time.Duration(i))
		out[i] = PageTiming{Start: s, End: s.Add(per)}
	}
	return out
}
