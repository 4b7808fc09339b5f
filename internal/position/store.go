package position

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"TradeSentinel/internal/model"
)

// Snapshot is the persisted form of a Manager.
type Snapshot struct {
	State     model.PositionState `json:"state"`
	Position  *model.Position     `json:"position,omitempty"`
	Cash      float64             `json:"cash"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Fresh reports whether the snapshot was never saved.
func (s *Snapshot) Fresh() bool {
	return s.UpdatedAt.IsZero()
}

// LoadSnapshot reads a snapshot from a JSON file. Returns a flat zero
// snapshot if the file doesn't exist.
func LoadSnapshot(filePath string) (*Snapshot, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Snapshot{State: model.StateFlat}, nil
		}
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap.Position == nil {
		snap.State = model.StateFlat
	} else {
		snap.State = model.StateOpen
	}
	return &snap, nil
}

// SaveSnapshot writes the snapshot to a JSON file.
func SaveSnapshot(filePath string, snap *Snapshot) error {
	snap.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}

// LoadManager creates a Manager from the snapshot at filePath, starting
// with initialCash when nothing was saved yet.
func LoadManager(cfg Config, filePath string, initialCash float64) (*Manager, error) {
	snap, err := LoadSnapshot(filePath)
	if err != nil {
		return nil, err
	}
	if snap.Fresh() {
		snap.Cash = initialCash
	}
	m, err := NewManager(cfg, snap.Cash)
	if err != nil {
		return nil, err
	}
	m.Restore(*snap)
	return m, nil
}
