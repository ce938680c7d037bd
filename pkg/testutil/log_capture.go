// Package testutil provides helpers shared by tests, primarily for capturing
// structured log output produced through pkg/log.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/freshen/freshen/pkg/log"
)

// CaptureLogOutput redirects log output to a buffer while testFunc runs and
// returns whatever was written. The previous output writer and log level are
// restored afterwards, even if testFunc panics.
//
// Example:
//
//	output, err := testutil.CaptureLogOutput(log.LevelDebug, func() {
//	    log.Info("this will be captured")
//	})
func CaptureLogOutput(logLevel log.Level, testFunc func()) (string, error) {
	originalLevel := log.CurrentLevel()

	var logBuf bytes.Buffer
	restore := log.SetOutput(&logBuf)
	defer restore()

	log.SetLevel(logLevel)
	defer log.SetLevel(originalLevel)

	var panicErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = fmt.Errorf("panic during log capture: %v", r)
			}
		}()
		testFunc()
	}()

	return logBuf.String(), panicErr
}

// CaptureJSONLogs captures log output like CaptureLogOutput and additionally
// parses each line as a JSON object. Log output defaults to JSON, so this works
// without touching LOG_FORMAT.
func CaptureJSONLogs(logLevel log.Level, testFunc func()) ([]map[string]any, error) {
	output, err := CaptureLogOutput(logLevel, testFunc)
	if err != nil {
		return nil, err
	}

	var entries []map[string]any
	for i, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return entries, fmt.Errorf("log line %d is not valid JSON: %w", i+1, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
