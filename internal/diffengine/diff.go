// Package diffengine implements the character-level diff contract and the
// three-way textual merge algorithm: diff the base against each side,
// build a per-character change table for each side, let the right side's
// deletions win over the left's retentions where both touch the same
// character, then scatter each side's insertions back in and coalesce the
// result into sign-tagged runs.
package diffengine

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Sign tags a Run as a deletion, an unchanged span, or an insertion.
type Sign int

const (
	SignDelete Sign = -1
	SignEqual  Sign = 0
	SignInsert Sign = 1
)

// Run is one coalesced, sign-tagged span of text in a diff or merge result.
type Run struct {
	Sign Sign
	Text string
}

var engine = diffmatchpatch.New()

// Diff returns the character-level difference between a and b as a sequence
// of sign-tagged runs.
func Diff(a, b string) []Run {
	return toRuns(rawDiff(a, b))
}

func rawDiff(a, b string) []diffmatchpatch.Diff {
	diffs := engine.DiffMain(a, b, false)
	return engine.DiffCleanupSemantic(diffs)
}

func toRuns(diffs []diffmatchpatch.Diff) []Run {
	runs := make([]Run, len(diffs))
	for i, d := range diffs {
		runs[i] = Run{Sign: signOf(d.Type), Text: d.Text}
	}
	return runs
}

func signOf(t diffmatchpatch.Operation) Sign {
	switch t {
	case diffmatchpatch.DiffDelete:
		return SignDelete
	case diffmatchpatch.DiffInsert:
		return SignInsert
	default:
		return SignEqual
	}
}

// cell is one position of base text annotated with which side changed it
// (sign), the character itself, and any insertions anchored just before it.
type cell struct {
	sign    Sign
	letter  string
	inserts []string
}

// changesTable walks diffs (base -> other) and produces one cell per
// character of base, tagged with whichever side's diff touched it.
// Insertions don't consume base characters so they're skipped here and
// picked up later by appendAdditions.
func changesTable(base string, diffs []diffmatchpatch.Diff) []cell {
	runes := []rune(base)
	cells := make([]cell, len(runes))
	index := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffInsert {
			continue
		}
		sign := signOf(d.Type)
		for _, r := range []rune(d.Text) {
			cells[index] = cell{sign: sign, letter: string(r)}
			index++
		}
	}
	return cells
}

// mergeChangesTables overlays the right side's deletions onto the left
// side's table: if both sides agree on a position it keeps the left
// side's tag, but a deletion on the right always wins.
func mergeChangesTables(left, right []cell) []cell {
	merged := make([]cell, len(left))
	copy(merged, left)
	for i, c := range right {
		if c.sign == SignDelete {
			merged[i] = cell{sign: SignDelete, letter: c.letter}
		}
	}
	return merged
}

// appendAdditions scatters each side's insertions into the merged table,
// anchored at the base-text position they were inserted before. An
// insertion at the very end of base lands on the sentinel cell appended
// by ThreeWayMerge.
func appendAdditions(cells []cell, diffs []diffmatchpatch.Diff) {
	index := 0
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffInsert {
			index += len([]rune(d.Text))
			continue
		}
		cells[index].inserts = append(cells[index].inserts, d.Text)
	}
}

// emergeDiffFromChanges coalesces the annotated cell table back into
// sign-tagged runs, flushing the run in progress whenever it hits a
// non-empty insert list.
func emergeDiffFromChanges(cells []cell) []Run {
	var runs []Run
	var current strings.Builder
	var currentSign Sign
	haveCurrent := false

	flush := func() {
		if haveCurrent {
			runs = append(runs, Run{Sign: currentSign, Text: current.String()})
		}
		current.Reset()
		haveCurrent = false
	}

	for _, c := range cells {
		if len(c.inserts) > 0 {
			flush()
			runs = append(runs, Run{Sign: SignInsert, Text: strings.Join(c.inserts, "")})
		}

		if haveCurrent && currentSign == c.sign {
			current.WriteString(c.letter)
			continue
		}

		flush()
		current.WriteString(c.letter)
		currentSign = c.sign
		haveCurrent = true
	}
	flush()

	// The sentinel cell appended by ThreeWayMerge carries an empty
	// letter purely to catch trailing insertions; drop it if it
	// surfaced as its own empty run.
	out := runs[:0]
	for _, r := range runs {
		if r.Text == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ThreeWayMerge merges two divergent edits of base (left and right) using
// the change-table algorithm: character diff base against each side,
// overlay the tables (right's deletions win), scatter both sides'
// insertions back in, and coalesce into runs. The result interleaves
// unchanged, deleted and inserted spans in document order; a caller
// wanting plain merged text should concatenate every run whose Sign is
// not SignDelete.
func ThreeWayMerge(base, left, right string) []Run {
	diffsLeft := rawDiff(base, left)
	diffsRight := rawDiff(base, right)

	cellsLeft := changesTable(base, diffsLeft)
	cellsRight := changesTable(base, diffsRight)

	merged := mergeChangesTables(cellsLeft, cellsRight)
	// Sentinel cell catching insertions at the very end of base.
	merged = append(merged, cell{sign: SignEqual, letter: ""})

	appendAdditions(merged, diffsLeft)
	appendAdditions(merged, diffsRight)

	return emergeDiffFromChanges(merged)
}

// Apply concatenates every non-deleted run into plain merged text.
func Apply(runs []Run) string {
	var b strings.Builder
	for _, r := range runs {
		if r.Sign == SignDelete {
			continue
		}
		b.WriteString(r.Text)
	}
	return b.String()
}
