package chat

import (
	"sort"
	"strings"
	"time"
)

// SortSessions orders pinned sessions first, then by UpdatedAt descending.
func SortSessions(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
		return a.ID < b.ID
	})
}

// VisibleSessions drops sessions without messages and returns the rest sorted.
func VisibleSessions(sessions []Session) []Session {
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if s.HasMessages() {
			out = append(out, s)
		}
	}
	SortSessions(out)
	return out
}

// DedupSessions collapses copies of the same logical conversation.
//
// Sessions sharing an id keep the most recently updated copy. When window is positive,
// sessions with different ids but the same normalized title whose CreatedAt values lie
// within window of each other are treated as one conversation created independently on
// two devices, and the most recently updated copy survives. Sessions in protected are
// never dropped by the title rule; they only shadow unprotected look-alikes. Messages of
// every surviving session are de-duplicated.
func DedupSessions(sessions []Session, window time.Duration, protected map[string]struct{}) []Session {
	byID := make(map[string]int, len(sessions))
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if idx, ok := byID[s.ID]; ok {
			if s.UpdatedAt > out[idx].UpdatedAt {
				out[idx] = s
			}
			continue
		}
		byID[s.ID] = len(out)
		out = append(out, s)
	}

	if window > 0 {
		out = dedupByTitle(out, window.Milliseconds(), protected)
	}

	for i := range out {
		out[i].Messages = DedupMessages(out[i].Messages)
	}
	SortSessions(out)
	return out
}

func dedupByTitle(sessions []Session, windowMs int64, protected map[string]struct{}) []Session {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt > sessions[j].UpdatedAt
	})

	kept := make([]Session, 0, len(sessions))
	byTitle := make(map[string][]int)
	rest := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if _, ok := protected[s.ID]; !ok {
			rest = append(rest, s)
			continue
		}
		if title := NormalizeTitle(s.Title); title != "" {
			byTitle[title] = append(byTitle[title], len(kept))
		}
		kept = append(kept, s)
	}

	for _, s := range rest {
		title := NormalizeTitle(s.Title)
		if title == "" {
			kept = append(kept, s)
			continue
		}
		duplicate := false
		for _, idx := range byTitle[title] {
			if abs(kept[idx].CreatedAt-s.CreatedAt) <= windowMs {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		byTitle[title] = append(byTitle[title], len(kept))
		kept = append(kept, s)
	}
	return kept
}

func NormalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
