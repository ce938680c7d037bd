// Package config loads the declarative image list that drives the rebuild
// run. The file is line-oriented: tab-separated records declare one build
// target each (name, context directory, optional base image, optional build
// options), and a single-field record replaces the global option set applied
// to all subsequent targets.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/freshen/freshen/pkg/exitcodes"
	"github.com/freshen/freshen/pkg/image"
	log "github.com/freshen/freshen/pkg/log"
)

// Spec describes one build target from the configuration file.
type Spec struct {
	Name      string   // Image reference, possibly short-form
	Directory string   // Build context path
	Base      string   // Base image reference, explicit or derived from the Dockerfile
	Options   []string // Build command arguments: global options then per-image options
	Line      int      // Line number in the configuration file, for diagnostics
}

// Load reads the image list at path. Every failure is fatal and reported with
// the offending line number; a file that yields zero images is an error.
func Load(fs afero.Fs, path string) ([]Spec, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, exitcodes.Wrap(exitcodes.ExitInputConfigurationError,
			fmt.Errorf("reading image list: %w", err))
	}
	defer file.Close()

	var (
		specs         []Spec
		globalOptions []string
		seen          = map[string]int{}
	)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		parsed, err := classifyLine(scanner.Text())
		if err != nil {
			return nil, lineError(path, lineNo, err)
		}

		switch parsed.kind {
		case lineBlank:
			continue
		case lineGlobalOptions:
			// A global line fully replaces the prior set, it does not append.
			globalOptions = parsed.globalOptions
			log.Debug("global options replaced", "line", lineNo, "options", globalOptions)
		case lineImage:
			spec, err := buildSpec(fs, parsed, globalOptions, lineNo)
			if err != nil {
				return nil, lineError(path, lineNo, err)
			}
			if prev, dup := seen[spec.Name]; dup {
				return nil, lineError(path, lineNo,
					fmt.Errorf("%w: %q first used on line %d", ErrDuplicateName, spec.Name, prev))
			}
			seen[spec.Name] = lineNo
			specs = append(specs, spec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, exitcodes.Wrap(exitcodes.ExitInputConfigurationError,
			fmt.Errorf("reading image list %s: %w", path, err))
	}

	if len(specs) == 0 {
		return nil, exitcodes.Wrap(exitcodes.ExitInputConfigurationError,
			fmt.Errorf("%s: %w", path, ErrNoImages))
	}

	log.Info("image list loaded", "path", path, "images", len(specs))
	return specs, nil
}

func buildSpec(fs afero.Fs, parsed *line, globalOptions []string, lineNo int) (Spec, error) {
	if _, err := image.ParseReference(parsed.name); err != nil {
		return Spec{}, err
	}

	isDir, err := afero.DirExists(fs, parsed.directory)
	if err != nil {
		return Spec{}, fmt.Errorf("checking directory %q: %w", parsed.directory, err)
	}
	if !isDir {
		return Spec{}, fmt.Errorf("%w: %q", ErrMissingDirectory, parsed.directory)
	}

	base := parsed.base
	if base == "" {
		base, err = baseFromDockerfile(fs, parsed.directory)
		if err != nil {
			return Spec{}, err
		}
	}

	options := make([]string, 0, len(globalOptions)+len(parsed.options))
	options = append(options, globalOptions...)
	options = append(options, parsed.options...)

	return Spec{
		Name:      parsed.name,
		Directory: parsed.directory,
		Base:      base,
		Options:   options,
		Line:      lineNo,
	}, nil
}

// baseFromDockerfile derives the base image from the first FROM instruction
// in the build context's Dockerfile.
func baseFromDockerfile(fs afero.Fs, dir string) (string, error) {
	path := filepath.Join(dir, "Dockerfile")
	file, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingBase, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		tokens := strings.Fields(scanner.Text())
		if len(tokens) < 2 || !strings.EqualFold(tokens[0], "FROM") {
			continue
		}
		for _, tok := range tokens[1:] {
			// FROM may carry flags such as --platform before the reference.
			if strings.HasPrefix(tok, "--") {
				continue
			}
			return tok, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return "", fmt.Errorf("%w (%s)", ErrMissingBase, path)
}

func lineError(path string, lineNo int, err error) error {
	code := exitcodes.ExitInputConfigurationError
	if _, ok := exitcodes.IsExitCodeError(err); ok {
		return err
	}
	if isReferenceError(err) {
		code = exitcodes.ExitInvalidImageReference
	}
	return exitcodes.Wrap(code, fmt.Errorf("%s:%d: %w", path, lineNo, err))
}

func isReferenceError(err error) bool {
	return errors.Is(err, image.ErrInvalidReferenceFormat) || errors.Is(err, image.ErrEmptyReference)
}
