// Package accession turns the CLI input argument into an ordered accession list.
package accession

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
)

// ErrEmptyInput is returned when no accession survives parsing.
var ErrEmptyInput = errors.New("no accessions found in input")

var runPattern = regexp.MustCompile(`^[SED]RR[0-9]+$`)

// Parse accepts a literal accession, a comma-separated list, or the path of a
// file holding comma/newline separated accessions. Order and duplicates are
// preserved.
func Parse(input string) ([]string, error) {
	if input != "" {
		if info, err := os.Stat(input); err == nil && info.Mode().IsRegular() {
			data, err := os.ReadFile(input)
			if err != nil {
				return nil, fmt.Errorf("read accession file %s: %w", input, err)
			}
			return parseFile(string(data))
		}
	}
	return parseList(input)
}

// parseFile splits file content on newlines, treating commas and carriage
// returns as line breaks.
func parseFile(content string) ([]string, error) {
	normalized := strings.NewReplacer(",", "\n", "\r", "\n").Replace(content)

	out := make([]string, 0)
	for _, line := range strings.Split(normalized, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if len(out) == 0 {
		return nil, ErrEmptyInput
	}
	return out, nil
}

// parseList strips every whitespace rune and splits the rest on commas.
func parseList(input string) ([]string, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)

	out := make([]string, 0)
	for _, token := range strings.Split(compact, ",") {
		if token == "" {
			continue
		}
		out = append(out, token)
	}
	if len(out) == 0 {
		return nil, ErrEmptyInput
	}
	return out, nil
}

// LooksLikeRun reports whether acc has the usual SRR/ERR/DRR run shape.
func LooksLikeRun(acc string) bool {
	return runPattern.MatchString(acc)
}
