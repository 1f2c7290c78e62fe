package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jensmonne/RSS-webhook/internal/core"
)

// statusFile mirrors the latest cycle of every feed into a JSON file next to
// the seen state, so operators of run-once deployments can inspect outcomes
// without a metrics listener.
type statusFile struct {
	mu    sync.Mutex
	path  string
	feeds map[string]core.CycleStatus
}

type statusImage struct {
	UpdatedAt time.Time                   `json:"updated_at"`
	Feeds     map[string]core.CycleStatus `json:"feeds"`
}

func newStatusFile(path string) *statusFile {
	return &statusFile{
		path:  path,
		feeds: make(map[string]core.CycleStatus),
	}
}

func (s *statusFile) Update(status core.CycleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feeds[status.Feed] = status
	image := statusImage{
		UpdatedAt: time.Now().UTC(),
		Feeds:     s.feeds,
	}
	data, err := json.MarshalIndent(image, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace status: %w", err)
	}
	return nil
}
