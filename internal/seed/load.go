// Package seed loads entries from YAML, JSON and JSONL files and imports them
// through the normalizer into a store.
//
// Accepted layouts:
//
//	# a list of records
//	- key: damage step
//	  content: ...
//	  tags: battle, timing
//
//	# a mapping of key to content, or key to record
//	damage step: ...
//	miss timing:
//	  content: ...
//
// JSON files use the same two layouts. JSONL files hold one record per line.
package seed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/rulings/internal/models"
)

// Record is a raw entry with the location it was read from.
type Record struct {
	Source string
	Raw    models.RawEntry
}

// Problem is a record that could not be parsed or normalized.
type Problem struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// loadConcurrency bounds parallel file parsing when loading a directory.
const loadConcurrency = 4

// IsSeedFile reports whether path has a supported extension.
func IsSeedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".jsonl", ".ndjson":
		return true
	}
	return false
}

// LoadPath loads a single seed file, or every seed file in a directory in
// lexical file order. Files are parsed in parallel.
func LoadPath(ctx context.Context, path string) ([]Record, []Problem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("seed: %w", err)
	}
	if !info.IsDir() {
		return LoadFile(path)
	}

	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return nil, nil, fmt.Errorf("seed: read dir: %w", err)
	}
	var files []string
	for _, de := range dirEntries {
		if !de.IsDir() && IsSeedFile(de.Name()) {
			files = append(files, filepath.Join(path, de.Name()))
		}
	}
	sort.Strings(files)

	records := make([][]Record, len(files))
	problems := make([][]Problem, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, p, err := LoadFile(f)
			if err != nil {
				return err
			}
			records[i], problems[i] = r, p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var allRecords []Record
	var allProblems []Problem
	for i := range files {
		allRecords = append(allRecords, records[i]...)
		allProblems = append(allProblems, problems[i]...)
	}
	return allRecords, allProblems, nil
}

// LoadFile parses one seed file, picking the format from its extension.
func LoadFile(path string) ([]Record, []Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("seed: %w", err)
	}
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		recs, err := ParseJSON(name, data)
		return recs, nil, err
	case ".jsonl", ".ndjson":
		recs, problems := ParseJSONL(name, data)
		return recs, problems, nil
	default:
		recs, err := ParseYAML(name, data)
		return recs, nil, err
	}
}

// ParseYAML decodes a YAML document holding a list of records or a mapping
// of key to content (or key to record).
func ParseYAML(source string, data []byte) ([]Record, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("seed: parse %s: %w", source, err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]

	switch root.Kind {
	case yaml.SequenceNode:
		out := make([]Record, 0, len(root.Content))
		for i, item := range root.Content {
			var raw models.RawEntry
			if err := item.Decode(&raw); err != nil {
				return nil, fmt.Errorf("seed: %s item %d: %w", source, i+1, err)
			}
			out = append(out, Record{Source: fmt.Sprintf("%s:%d", source, item.Line), Raw: raw})
		}
		return out, nil

	case yaml.MappingNode:
		out := make([]Record, 0, len(root.Content)/2)
		for i := 0; i+1 < len(root.Content); i += 2 {
			k, v := root.Content[i], root.Content[i+1]
			rec := Record{Source: fmt.Sprintf("%s:%d", source, k.Line)}
			switch v.Kind {
			case yaml.ScalarNode:
				if v.Tag == "!!null" {
					rec.Raw = models.RawEntry{Key: k.Value}
					break
				}
				content := v.Value
				rec.Raw = models.RawEntry{Key: k.Value, Content: &content}
			case yaml.MappingNode:
				if err := v.Decode(&rec.Raw); err != nil {
					return nil, fmt.Errorf("seed: %s key %q: %w", source, k.Value, err)
				}
				if rec.Raw.Key == "" {
					rec.Raw.Key = k.Value
				}
			default:
				return nil, fmt.Errorf("seed: %s key %q: expected text or mapping", source, k.Value)
			}
			out = append(out, rec)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("seed: %s: expected a list or a mapping at top level", source)
	}
}

// ParseJSON decodes a JSON array of records or an object of key to content
// (or key to record).
func ParseJSON(source string, data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var raws []models.RawEntry
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("seed: parse %s: %w", source, err)
		}
		out := make([]Record, len(raws))
		for i, raw := range raws {
			out[i] = Record{Source: fmt.Sprintf("%s[%d]", source, i), Raw: raw}
		}
		return out, nil

	case '{':
		// Decode token by token so the file's key order is kept.
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("seed: parse %s: %w", source, err)
		}
		var out []Record
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("seed: parse %s: %w", source, err)
			}
			key, _ := tok.(string)
			var value json.RawMessage
			if err := dec.Decode(&value); err != nil {
				return nil, fmt.Errorf("seed: parse %s key %q: %w", source, key, err)
			}
			rec := Record{Source: fmt.Sprintf("%s[%q]", source, key)}
			var content string
			if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
				// Absent content; the importer rejects it.
				rec.Raw = models.RawEntry{Key: key}
			} else if err := json.Unmarshal(value, &content); err == nil {
				rec.Raw = models.RawEntry{Key: key, Content: &content}
			} else {
				if err := json.Unmarshal(value, &rec.Raw); err != nil {
					return nil, fmt.Errorf("seed: parse %s key %q: %w", source, key, err)
				}
				if rec.Raw.Key == "" {
					rec.Raw.Key = key
				}
			}
			out = append(out, rec)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("seed: %s: expected a JSON array or object", source)
	}
}

// ParseJSONL decodes one record per line. Blank lines are ignored and lines
// that fail to parse are reported as problems.
func ParseJSONL(source string, data []byte) ([]Record, []Problem) {
	var out []Record
	var problems []Problem

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		loc := fmt.Sprintf("%s:%d", source, line)
		var raw models.RawEntry
		if err := json.Unmarshal(text, &raw); err != nil {
			problems = append(problems, Problem{Source: loc, Reason: err.Error()})
			continue
		}
		out = append(out, Record{Source: loc, Raw: raw})
	}
	if err := sc.Err(); err != nil {
		problems = append(problems, Problem{Source: source, Reason: err.Error()})
	}
	return out, problems
}
