// Package labels maps model output indices to human-readable stage names.
package labels

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// DefaultClassNames is the fibrosis stage ordering used when no label map
// side-file is available.
var DefaultClassNames = []string{"F0", "F1", "F2", "F3", "F4"}

type labelFile struct {
	ClassNames []string `json:"class_names"`
}

// Map loads an ordered class-name list from a JSON side-file. Load failures
// never propagate to callers: the previous (or default) ordering is kept so
// a broken label file cannot fail a prediction request. The last load
// outcome is retained for operator diagnostics only.
type Map struct {
	path string

	mu      sync.Mutex
	names   []string
	source  string // "default" or "file"
	loadErr string
}

// NewMap creates a Map backed by the given side-file path.
func NewMap(path string) *Map {
	return &Map{
		path:   path,
		names:  append([]string(nil), DefaultClassNames...),
		source: "default",
	}
}

// Load re-reads the side-file and returns the current class-name ordering.
// Called before every prediction render so a corrected label file takes
// effect without a restart.
func (m *Map) Load() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.loadErr = ""
		} else {
			m.loadErr = err.Error()
		}
		return m.snapshot()
	}

	var parsed labelFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		m.loadErr = fmt.Sprintf("invalid label map: %v", err)
		return m.snapshot()
	}
	if len(parsed.ClassNames) == 0 {
		m.loadErr = "label map has no class_names"
		return m.snapshot()
	}

	m.names = append([]string(nil), parsed.ClassNames...)
	m.source = "file"
	m.loadErr = ""
	return m.snapshot()
}

// Current returns the class-name ordering without re-reading the file.
func (m *Map) Current() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

// Status reports where the current ordering came from and the last load
// error, if any. Used by the diagnostic endpoint.
func (m *Map) Status() (source, loadErr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source, m.loadErr
}

func (m *Map) snapshot() []string {
	return append([]string(nil), m.names...)
}

// NameFor returns the class name for a model output index, falling back to
// the bare numeric index when the configured list is shorter than the
// model's output width.
func NameFor(names []string, index int) string {
	if index >= 0 && index < len(names) {
		return names[index]
	}
	return fmt.Sprintf("%d", index)
}
