package eval

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/wilhg/reviewbench/pkg/errmodel"
)

// Case fixture file names.
const (
	DiffFile     = "diff.txt"
	ExpectedFile = "expected_elements.json"
)

// Case is one evaluation fixture: a diff and the elements a good output
// should mention.
type Case struct {
	Name     string
	Diff     string
	Expected json.RawMessage
}

// ExpectedElements flattens Expected into a list of strings. Arrays yield
// their items; objects yield string values, array items, and the keys of
// scalar entries, in key order.
func (c Case) ExpectedElements() []string {
	var list []string
	if err := json.Unmarshal(c.Expected, &list); err == nil {
		return list
	}
	var obj map[string]any
	if err := json.Unmarshal(c.Expected, &obj); err != nil {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			out = append(out, v)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		default:
			out = append(out, k)
		}
	}
	return out
}

// LoadCases loads every subdirectory of dir that contains a diff file, in
// name order.
func LoadCases(fsys fs.FS, dir string) ([]Case, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var out []Case
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := fs.Stat(fsys, path.Join(dir, e.Name(), DiffFile)); err != nil {
			continue
		}
		c, err := LoadCase(fsys, dir, e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// LoadCase loads the case directory dir/name. Both fixture files are
// required and the expected elements must match the fixture schema.
func LoadCase(fsys fs.FS, dir, name string) (Case, error) {
	base := path.Join(dir, name)
	diff, err := fs.ReadFile(fsys, path.Join(base, DiffFile))
	if err != nil {
		return Case{}, fmt.Errorf("case %s: %w", name, err)
	}
	expected, err := fs.ReadFile(fsys, path.Join(base, ExpectedFile))
	if err != nil {
		return Case{}, fmt.Errorf("case %s: %w", name, err)
	}
	if err := validateJSON(expectedSchema, expected); err != nil {
		return Case{}, errmodel.New(errmodel.CategoryValidation, errmodel.CodeInvalidArgument,
			"invalid "+ExpectedFile, map[string]any{"case": name}, err)
	}
	return Case{Name: name, Diff: string(diff), Expected: json.RawMessage(expected)}, nil
}
