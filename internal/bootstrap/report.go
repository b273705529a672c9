package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"sra-fetch/internal/jobs"
)

// writeReport stores the batch summary as indented JSON.
func writeReport(path string, summary Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// writeEvents dumps the event log as JSON lines.
func writeEvents(path string, events *jobs.EventBus) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	writeErr := events.WriteJSONLines(f)
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}
