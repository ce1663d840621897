// Package gitdiff splits unified diffs at file boundaries and drops the
// segments of files that should not reach a reviewer, such as lock files.
package gitdiff

import "strings"

// BoundaryPrefix marks the first line of every per-file segment.
const BoundaryPrefix = "diff --git"

// DefaultIgnorePatterns lists the path substrings suppressed by FilterDefault.
var DefaultIgnorePatterns = []string{
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"poetry.lock",
	"Cargo.lock",
	"Gemfile.lock",
	".lock",
}

// Segment is one contiguous run of lines. The preamble segment has an empty
// Header and is never suppressed.
type Segment struct {
	Header string
	Path   string
	Lines  []string
}

// Preamble reports whether s holds the lines before the first boundary.
func (s Segment) Preamble() bool { return s.Header == "" }

// TargetPath returns the post-image path named by a boundary line: the last
// space separated token with the "b/" prefix removed. Headers with fewer
// than four tokens have no usable target and yield "".
func TargetPath(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) < 4 {
		return ""
	}
	return strings.TrimPrefix(parts[len(parts)-1], "b/")
}

// Segments splits doc on "\n" and groups the lines by boundary.
func Segments(doc string) []Segment {
	lines := strings.Split(doc, "\n")
	var (
		out []Segment
		cur = Segment{}
	)
	for _, line := range lines {
		if strings.HasPrefix(line, BoundaryPrefix) {
			if !cur.Preamble() || len(cur.Lines) > 0 {
				out = append(out, cur)
			}
			cur = Segment{Header: line, Path: TargetPath(line)}
		}
		cur.Lines = append(cur.Lines, line)
	}
	return append(out, cur)
}

// Paths returns the target path of every file segment in doc, in order.
func Paths(doc string) []string {
	var out []string
	for _, seg := range Segments(doc) {
		if !seg.Preamble() {
			out = append(out, seg.Path)
		}
	}
	return out
}

// Ignored reports whether path contains any of patterns.
func Ignored(path string, patterns []string) bool {
	if path == "" {
		return false
	}
	for _, p := range patterns {
		if p != "" && strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// Filter removes every segment whose target path contains one of patterns.
// The result is an order preserving subsequence of the input lines; a
// document without boundaries is returned unchanged.
func Filter(doc string, patterns []string) string {
	out, _ := FilterReport(doc, patterns)
	return out
}

// FilterDefault is Filter with DefaultIgnorePatterns.
func FilterDefault(doc string) string {
	return Filter(doc, DefaultIgnorePatterns)
}

// FilterReport is Filter that also returns the suppressed paths.
func FilterReport(doc string, patterns []string) (string, []string) {
	if !strings.Contains(doc, BoundaryPrefix) {
		return doc, nil
	}
	var (
		kept    []string
		dropped []string
	)
	for _, seg := range Segments(doc) {
		if !seg.Preamble() && Ignored(seg.Path, patterns) {
			dropped = append(dropped, seg.Path)
			continue
		}
		kept = append(kept, seg.Lines...)
	}
	return strings.Join(kept, "\n"), dropped
}
