// Package placeholder turns inline image markers in generated prose into
// stable, addressable placeholder ids.
package placeholder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vampirenirmal/bookforge/internal/domain/book"
)

var (
	// A description may wrap across lines and hold one level of brackets.
	markerPattern = regexp.MustCompile(`\[IMAGE:\s*((?:[^\[\]]|\[[^\[\]]*\])*)\]`)
	idPattern     = regexp.MustCompile(`^(?:[a-z0-9_]+_image\d+|cover)$`)
)

// Result is the rewritten text of one unit and the placeholders minted for it.
type Result struct {
	Text         string
	Placeholders []book.ImagePlaceholder
}

// ID returns the placeholder id for the k-th (1-based) marker of a unit.
func ID(unitID string, k int) string {
	return fmt.Sprintf("%s_image%d", unitID, k)
}

// Marker formats an inline marker for the given description or id.
func Marker(s string) string {
	return "[IMAGE: " + s + "]"
}

// Resolve rewrites every marker in text to reference a freshly minted id.
// Markers are numbered in scan order and each occurrence is rewritten on its
// own, so repeated descriptions still get distinct ids.
func Resolve(unitID, text string) Result {
	matches := markerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return Result{Text: text}
	}

	var b strings.Builder
	b.Grow(len(text))
	placeholders := make([]book.ImagePlaceholder, 0, len(matches))

	last := 0
	for i, m := range matches {
		desc := strings.Join(strings.Fields(text[m[2]:m[3]]), " ")
		if desc == "" {
			desc = "Illustration for " + unitID
		}
		id := ID(unitID, i+1)
		placeholders = append(placeholders, book.ImagePlaceholder{ID: id, Description: desc})

		b.WriteString(text[last:m[0]])
		b.WriteString(Marker(id))
		last = m[1]
	}
	b.WriteString(text[last:])

	return Result{Text: b.String(), Placeholders: placeholders}
}

// CountMismatch reports a unit whose resolved marker count differs from its
// outline. It is a warning, never a failure.
type CountMismatch struct {
	UnitID   string
	Expected int
	Actual   int
}

func (m *CountMismatch) String() string {
	return fmt.Sprintf("%s: expected %d image placeholders, found %d", m.UnitID, m.Expected, m.Actual)
}

// CheckExpected returns nil when the counts agree.
func CheckExpected(unitID string, expected, actual int) *CountMismatch {
	if expected == actual {
		return nil
	}
	return &CountMismatch{UnitID: unitID, Expected: expected, Actual: actual}
}

// References lists the resolved ids referenced by text, in order.
// Markers still carrying a raw description are ignored.
func References(text string) []string {
	var ids []string
	for _, m := range markerPattern.FindAllStringSubmatch(text, -1) {
		id := strings.TrimSpace(m[1])
		if idPattern.MatchString(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Piece is either a run of prose or a single resolved marker.
type Piece struct {
	Text string
	ID   string
}

func (p Piece) IsImage() bool { return p.ID != "" }

// Split breaks a segment into prose and marker pieces preserving order.
// Whitespace-only prose between markers is dropped.
func Split(segment string) []Piece {
	var pieces []Piece
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			pieces = append(pieces, Piece{Text: s})
		}
	}

	last := 0
	for _, m := range markerPattern.FindAllStringSubmatchIndex(segment, -1) {
		id := strings.TrimSpace(segment[m[2]:m[3]])
		if !idPattern.MatchString(id) {
			continue
		}
		add(segment[last:m[0]])
		pieces = append(pieces, Piece{ID: id})
		last = m[1]
	}
	add(segment[last:])
	return pieces
}

// Strip removes every marker from text and tidies the leftover spacing.
func Strip(text string) string {
	out := markerPattern.ReplaceAllString(text, "")
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Flatten concatenates per-unit placeholder lists in unit order.
func Flatten(units [][]book.ImagePlaceholder) []book.ImagePlaceholder {
	n := 0
	for _, u := range units {
		n += len(u)
	}
	out := make([]book.ImagePlaceholder, 0, n)
	for _, u := range units {
		out = append(out, u...)
	}
	return out
}
