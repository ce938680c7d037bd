package config

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// lineKind tags the parsed form of one configuration line.
type lineKind int

const (
	// lineBlank is an empty or comment-only line.
	lineBlank lineKind = iota
	// lineGlobalOptions replaces the current global option set.
	lineGlobalOptions
	// lineImage declares one build target.
	lineImage
)

// line is the tagged result of classifying one raw configuration line.
type line struct {
	kind lineKind

	// lineGlobalOptions
	globalOptions []string

	// lineImage
	name      string
	directory string
	base      string
	options   []string
}

// classifyLine splits a raw line into tab-separated fields, strips trailing
// comments, and produces the tagged line variant. Fields are separated by one
// or more horizontal tabs; a field whose first character is '#' starts a
// comment that discards the rest of the line.
func classifyLine(raw string) (*line, error) {
	fields := splitFields(raw)
	if len(fields) == 0 {
		return &line{kind: lineBlank}, nil
	}

	if len(fields) == 1 {
		tokens, err := shlex.Split(fields[0])
		if err != nil {
			return nil, fmt.Errorf("tokenizing options %q: %w", fields[0], err)
		}
		return &line{kind: lineGlobalOptions, globalOptions: tokens}, nil
	}

	parsed := &line{
		kind:      lineImage,
		name:      fields[0],
		directory: fields[1],
	}

	switch len(fields) {
	case 2:
	case 3:
		// The third field is options when it starts like a command-line
		// token, a base reference otherwise.
		if isOptionsField(fields[2]) {
			tokens, err := shlex.Split(fields[2])
			if err != nil {
				return nil, fmt.Errorf("tokenizing options %q: %w", fields[2], err)
			}
			parsed.options = tokens
		} else {
			parsed.base = fields[2]
		}
	case 4:
		parsed.base = fields[2]
		tokens, err := shlex.Split(fields[3])
		if err != nil {
			return nil, fmt.Errorf("tokenizing options %q: %w", fields[3], err)
		}
		parsed.options = tokens
	default:
		return nil, fmt.Errorf("%w: got %d", ErrTooManyFields, len(fields))
	}

	return parsed, nil
}

// splitFields splits on runs of tabs and cuts the line at the first field
// that introduces a comment.
func splitFields(raw string) []string {
	all := strings.FieldsFunc(raw, func(r rune) bool { return r == '\t' })
	fields := make([]string, 0, len(all))
	for _, f := range all {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if strings.HasPrefix(f, "#") {
			break
		}
		fields = append(fields, f)
	}
	return fields
}

func isOptionsField(field string) bool {
	return strings.HasPrefix(field, "-") ||
		strings.HasPrefix(field, `"`) ||
		strings.HasPrefix(field, "'")
}
