// Package diff renders line diffs for patch previews.
package diff

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	ai "github.com/spetersoncode/tandem"
)

// LineType classifies a line of a diff.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineRemoved
)

// Line is one line of a diff with its 1-based position in the old and new
// text. OldLine is zero for added lines and NewLine is zero for removed ones.
type Line struct {
	Type    LineType
	Text    string
	OldLine int
	NewLine int
}

// MaxLines bounds the input size of a diff; larger files are summarized.
const MaxLines = 5000

// contextLines is how many unchanged lines surround each change.
const contextLines = 3

// Lines diffs before and after line by line.
func Lines(before, after string) []Line {
	var table lineTable
	a, b := table.encode(before), table.encode(after)
	diffs := diffmatchpatch.New().DiffMainRunes(a, b, false)

	var lines []Line
	oldLine, newLine := 1, 1
	for _, d := range diffs {
		for _, r := range d.Text {
			text := table.line(r)
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, Line{Type: LineContext, Text: text, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, Line{Type: LineRemoved, Text: text, OldLine: oldLine})
				oldLine++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, Line{Type: LineAdded, Text: text, NewLine: newLine})
				newLine++
			}
		}
	}
	return lines
}

// lineTable assigns every distinct line one rune so the character diff
// works on whole lines. Surrogate code points are skipped because they do
// not survive a string round trip.
type lineTable struct {
	index map[string]rune
	lines []string
}

const (
	surrogateMin = 0xD800
	surrogateMax = 0xDFFF
)

func (t *lineTable) encode(text string) []rune {
	if t.index == nil {
		t.index = make(map[string]rune)
	}
	parts := strings.SplitAfter(text, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	out := make([]rune, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSuffix(p, "\n")
		r, ok := t.index[p]
		if !ok {
			r = rune(len(t.lines) + 1)
			if r >= surrogateMin {
				r += surrogateMax - surrogateMin + 1
			}
			t.index[p] = r
			t.lines = append(t.lines, p)
		}
		out = append(out, r)
	}
	return out
}

func (t *lineTable) line(r rune) string {
	i := int(r)
	if r > surrogateMax {
		i -= surrogateMax - surrogateMin + 1
	}
	i--
	if i < 0 || i >= len(t.lines) {
		return ""
	}
	return t.lines[i]
}

// Unified renders a compact unified diff of before and after, keeping a few
// context lines around each change. It returns "" when they are equal.
func Unified(path, before, after string) string {
	if before == after {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n+++ b/%s\n", path, path)
	if lineCount(before)+lineCount(after) > MaxLines {
		fmt.Fprintf(&sb, "(diff too large: %d -> %d lines)\n", lineCount(before), lineCount(after))
		return sb.String()
	}

	lines := Lines(before, after)
	keep := make([]bool, len(lines))
	for i, l := range lines {
		if l.Type == LineContext {
			continue
		}
		for j := max(0, i-contextLines); j <= min(len(lines)-1, i+contextLines); j++ {
			keep[j] = true
		}
	}

	gap := false
	for i, l := range lines {
		if !keep[i] {
			gap = true
			continue
		}
		if gap {
			sb.WriteString("@@\n")
			gap = false
		}
		switch l.Type {
		case LineAdded:
			sb.WriteString("+")
		case LineRemoved:
			sb.WriteString("-")
		default:
			sb.WriteString(" ")
		}
		sb.WriteString(l.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Preview renders every file change of patch against the current contents
// on disk. Relative paths resolve against workdir.
func Preview(patch *ai.Patch, workdir string) string {
	if patch == nil {
		return ""
	}
	var sb strings.Builder
	for _, f := range patch.Files {
		p := f.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(workdir, p)
		}
		current := ""
		if data, err := os.ReadFile(p); err == nil {
			current = string(data)
		}
		switch f.Op {
		case ai.PatchDelete:
			sb.WriteString(Unified(f.Path, current, ""))
			if current == "" {
				fmt.Fprintf(&sb, "delete %s\n", f.Path)
			}
		default:
			sb.WriteString(Unified(f.Path, current, f.Content))
		}
	}
	return sb.String()
}

func lineCount(value string) int {
	if value == "" {
		return 0
	}
	return strings.Count(value, "\n") + 1
}
