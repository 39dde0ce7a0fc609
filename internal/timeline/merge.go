package timeline

import (
	"sort"
	"strings"
)

// Merge combines a snapshot timeline with items derived from the live feed
// into one ordered, deduplicated sequence. It is stateless and idempotent:
// feeding the same live item twice, or an item the snapshot already holds,
// produces no duplicate, and the output order does not depend on the input
// order. Callers re-run it over the full accumulated live buffer.
func Merge(snapshot, live []Item) []Item {
	merged := make([]Item, 0, len(snapshot)+len(live))
	merged = append(merged, snapshot...)
	merged = append(merged, live...)

	// Timestamps are compared lexicographically (RFC 3339 strings sort in
	// time order); the ID tie-break keeps same-timestamp ordering stable.
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].TS != merged[j].TS {
			return merged[i].TS < merged[j].TS
		}
		return merged[i].ID < merged[j].ID
	})

	seen := make(map[string]struct{}, len(merged))
	out := merged[:0]
	for _, it := range merged {
		sig := signature(it)
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		out = append(out, it)
	}
	return out
}

// signature identifies an item for dedup purposes. The snapshot and the
// live feed synthesize IDs differently, so equality is judged on content,
// not on ID.
func signature(it Item) string {
	return strings.Join([]string{
		it.TS,
		it.TurnID,
		string(it.Type),
		it.RawType,
		it.CallID,
		it.Text,
	}, "\x1f")
}
