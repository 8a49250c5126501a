package ps

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/nickyhof/MiniDB/core"
)

const SnapshotVersion = 1

// IndexDef is the persisted definition of an index. Contents are never
// stored; they are rebuilt from the rows on load.
type IndexDef struct {
	Name     string `json:"name"`
	Column   string `json:"column"`
	Unique   bool   `json:"unique,omitempty"`
	Implicit bool   `json:"implicit,omitempty"`
}

// Snapshot is the on-disk form of one table.
type Snapshot struct {
	Version int        `json:"version"`
	Table   core.Table `json:"table"`
	Indexes []IndexDef `json:"indexes"`
	Rows    []core.Row `json:"rows"`
}

func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	s.Version = SnapshotVersion
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot of %s: %w", s.Table.Name, err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot and settles every cell against its
// column type. Any problem is reported as core.ErrUnreadable.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnreadable, err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", core.ErrUnreadable, s.Version)
	}
	if err := s.Table.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnreadable, err)
	}

	for i, row := range s.Rows {
		if len(row) != len(s.Table.Columns) {
			return nil, fmt.Errorf("%w: row %d of %s has %d values, want %d",
				core.ErrUnreadable, i, s.Table.Name, len(row), len(s.Table.Columns))
		}
		for j, col := range s.Table.Columns {
			v, err := core.Coerce(row[j], col.Type)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %s: %v", core.ErrUnreadable, i, col.Name, err)
			}
			row[j] = v
		}
	}

	return &s, nil
}
