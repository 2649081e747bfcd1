package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/minetick/ticket-store/internal/errs"
	"github.com/minetick/ticket-store/internal/model"
)

// loadSnapshot reads the snapshot file into a fresh ticket map and reports the
// highest id found. A missing file means a fresh start; a present but
// unparseable file is a corrupt snapshot and fails loudly.
func loadSnapshot(path string) (map[uint64]model.Ticket, uint64, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	var tickets map[uint64]model.Ticket
	if err := json.Unmarshal(data, &tickets); err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %v", errs.ErrCorruptSnapshot, path, err)
	}

	var maxID uint64
	for id := range tickets {
		if id > maxID {
			maxID = id
		}
	}
	return tickets, maxID, nil
}

// writeSnapshot serializes the whole map and replaces the snapshot file via a
// temp-file rename, so a crash mid-write never clobbers the previous snapshot.
// The map lock is held only for the in-memory copy, not for file I/O.
func (s *Store) writeSnapshot() error {
	s.mu.RLock()
	tickets := make(map[uint64]model.Ticket, len(s.tickets))
	for id, t := range s.tickets {
		tickets[id] = t
	}
	s.mu.RUnlock()

	data, err := json.Marshal(tickets)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func nowUnix() int64 { return time.Now().Unix() }
