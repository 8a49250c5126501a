package ps

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/nickyhof/MiniDB/core"
)

// Checkpoint tags a save under name so it can be found later. A nil asof
// tags HEAD.
func (persistence *Persistence) Checkpoint(name string, asof *Transaction) error {
	if err := persistence.ensureInitialized(); err != nil {
		return err
	}

	hash := persistence.headHash()
	if asof != nil {
		hash = plumbing.NewHash(asof.Id)
	}
	if hash == plumbing.ZeroHash {
		return fmt.Errorf("nothing saved yet to checkpoint")
	}

	_, err := persistence.repo.CreateTag(name, hash, nil)
	return err
}

// Resolve turns a checkpoint name or a commit id into its Transaction.
func (persistence *Persistence) Resolve(ref string) (Transaction, error) {
	if err := persistence.ensureInitialized(); err != nil {
		return Transaction{}, err
	}

	hash := plumbing.NewHash(ref)
	if tag, err := persistence.repo.Tag(ref); err == nil {
		hash = tag.Hash()
	} else if resolved, err := persistence.repo.ResolveRevision(plumbing.Revision(ref)); err == nil {
		hash = *resolved
	}

	commit, err := persistence.repo.CommitObject(hash)
	if err != nil {
		return Transaction{}, fmt.Errorf("unknown transaction %s: %w", ref, err)
	}
	return commitTransaction(commit), nil
}

// AsOf returns a read-only view of the snapshots as they were saved by
// the given transaction.
func (persistence *Persistence) AsOf(asof Transaction) SnapshotStore {
	return &commitView{persistence: persistence, hash: plumbing.NewHash(asof.Id)}
}

type commitView struct {
	persistence *Persistence
	hash        plumbing.Hash
}

func (v *commitView) WriteSnapshots(context.Context, map[string][]byte, core.Identity) (Transaction, error) {
	return Transaction{}, ErrReadOnly
}

func (v *commitView) ReadSnapshot(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.persistence.RLock()
	defer v.persistence.RUnlock()
	return v.persistence.readFileAt(v.hash, snapshotPath(name))
}

func (v *commitView) ListSnapshots(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.persistence.RLock()
	defer v.persistence.RUnlock()
	files, err := v.persistence.listFilesAt(v.hash, tablesDir)
	if err != nil {
		return nil, err
	}
	return snapshotNames(files), nil
}
