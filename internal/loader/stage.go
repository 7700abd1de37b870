package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"natural/internal/logging"
)

// Stage is a run-scoped scratch directory for staging candidate source.
// Each synthesis run owns one Stage so concurrent runs never share files.
type Stage struct {
	dir string
}

// NewStage creates a uniquely named scratch directory under parent
// (os.TempDir when parent is empty).
func NewStage(parent string) (*Stage, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return nil, fmt.Errorf("failed to create scratch parent %s: %w", parent, err)
		}
	}
	dir, err := os.MkdirTemp(parent, "natural-stage-")
	if err != nil {
		return nil, fmt.Errorf("failed to create stage: %w", err)
	}
	logging.LoaderDebug("Stage created: %s", dir)
	return &Stage{dir: dir}, nil
}

// Dir returns the stage directory.
func (s *Stage) Dir() string {
	return s.dir
}

// write stages src in a uniquely named file and returns a func removing it.
func (s *Stage) write(src string) (string, func(), error) {
	path := filepath.Join(s.dir, "candidate-"+uuid.NewString()+".go")
	if err := os.WriteFile(path, []byte(src), 0600); err != nil {
		return "", func() {}, fmt.Errorf("failed to stage candidate: %w", err)
	}
	return path, func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.LoaderWarn("Failed to remove staged candidate %s: %v", path, err)
		}
	}, nil
}

// Close removes the stage directory and anything left in it.
func (s *Stage) Close() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove stage %s: %w", s.dir, err)
	}
	return nil
}
