package ps

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/nickyhof/MiniDB/core"
)

const (
	tablesDir      = "tables"
	snapshotSuffix = ".snapshot"
)

func snapshotPath(name string) string {
	return path.Join(tablesDir, name+snapshotSuffix)
}

func snapshotNames(files []string) []string {
	var names []string
	for _, file := range files {
		if name, ok := strings.CutSuffix(file, snapshotSuffix); ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// WriteSnapshots commits the given snapshots and removes stored tables
// missing from the set, all in one commit.
func (persistence *Persistence) WriteSnapshots(ctx context.Context, snapshots map[string][]byte, identity core.Identity) (Transaction, error) {
	if err := persistence.ensureInitialized(); err != nil {
		return Transaction{}, err
	}
	if err := ctx.Err(); err != nil {
		return Transaction{}, err
	}

	persistence.Lock()
	defer persistence.Unlock()

	existing, err := persistence.listFilesAt(persistence.headHash(), tablesDir)
	if err != nil {
		return Transaction{}, err
	}

	tb, err := persistence.BeginTransaction()
	if err != nil {
		return Transaction{}, err
	}

	names := make([]string, 0, len(snapshots))
	for name := range snapshots {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := tb.AddWrite(name, snapshots[name]); err != nil {
			tb.Rollback()
			return Transaction{}, err
		}
	}

	var dropped []string
	for _, name := range snapshotNames(existing) {
		if _, keep := snapshots[name]; !keep {
			if err := tb.AddDelete(name); err != nil {
				tb.Rollback()
				return Transaction{}, err
			}
			dropped = append(dropped, name)
		}
	}

	message := fmt.Sprintf("Save %d table(s)", len(names))
	if len(dropped) > 0 {
		message += fmt.Sprintf(", drop %s", strings.Join(dropped, ", "))
	}
	return tb.Commit(identity, message)
}

func (persistence *Persistence) ReadSnapshot(ctx context.Context, name string) ([]byte, error) {
	if err := persistence.ensureInitialized(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	persistence.RLock()
	defer persistence.RUnlock()

	return persistence.readFileAt(persistence.headHash(), snapshotPath(name))
}

func (persistence *Persistence) ListSnapshots(ctx context.Context) ([]string, error) {
	if err := persistence.ensureInitialized(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	persistence.RLock()
	defer persistence.RUnlock()

	files, err := persistence.listFilesAt(persistence.headHash(), tablesDir)
	if err != nil {
		return nil, err
	}
	return snapshotNames(files), nil
}
