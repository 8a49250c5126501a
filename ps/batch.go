package ps

import (
	"fmt"

	"github.com/nickyhof/MiniDB/core"
)

// Operation is one pending snapshot write or removal.
type Operation struct {
	Type OperationType
	Name string
	Data []byte
}

type OperationType int

const (
	WriteOp OperationType = iota
	DeleteOp
)

// TransactionBuilder collects snapshot changes and applies them as a
// single commit.
type TransactionBuilder struct {
	persistence *Persistence
	operations  []Operation
	started     bool
}

func (persistence *Persistence) BeginTransaction() (*TransactionBuilder, error) {
	if err := persistence.ensureInitialized(); err != nil {
		return nil, err
	}

	return &TransactionBuilder{
		persistence: persistence,
		started:     true,
	}, nil
}

func (tb *TransactionBuilder) AddWrite(name string, data []byte) error {
	if !tb.started {
		return fmt.Errorf("transaction not started")
	}
	tb.operations = append(tb.operations, Operation{Type: WriteOp, Name: name, Data: data})
	return nil
}

func (tb *TransactionBuilder) AddDelete(name string) error {
	if !tb.started {
		return fmt.Errorf("transaction not started")
	}
	tb.operations = append(tb.operations, Operation{Type: DeleteOp, Name: name})
	return nil
}

// Commit writes every batched change in one commit. When the resulting
// tree equals HEAD's no commit is made and the latest transaction is
// returned.
func (tb *TransactionBuilder) Commit(identity core.Identity, message string) (Transaction, error) {
	if !tb.started {
		return Transaction{}, fmt.Errorf("transaction not started")
	}
	defer tb.Rollback()

	p := tb.persistence
	currentTree, err := p.getCurrentTree()
	if err != nil {
		return Transaction{}, err
	}

	changes := make([]TreeChange, 0, len(tb.operations))
	for _, op := range tb.operations {
		opPath := snapshotPath(op.Name)
		if op.Type == DeleteOp {
			changes = append(changes, TreeChange{Path: opPath, IsDelete: true})
			continue
		}

		blobHash, err := p.createBlob(op.Data)
		if err != nil {
			return Transaction{}, fmt.Errorf("failed to create blob for %s: %w", opPath, err)
		}
		changes = append(changes, TreeChange{Path: opPath, BlobHash: blobHash})
	}

	newTree, err := p.batchUpdateTree(currentTree, changes)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to update tree: %w", err)
	}

	if latest := p.LatestTransaction(); latest.Id != "" && newTree == currentTree {
		return latest, nil
	}

	if message == "" {
		message = fmt.Sprintf("Save %d snapshot change(s)", len(tb.operations))
	}
	txn, err := p.createCommitDirect(newTree, identity, message)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to commit: %w", err)
	}

	if err := p.syncWorktree(); err != nil {
		return Transaction{}, fmt.Errorf("failed to sync worktree: %w", err)
	}

	return txn, nil
}

// Rollback discards the batch.
func (tb *TransactionBuilder) Rollback() {
	tb.started = false
	tb.operations = nil
}

func (tb *TransactionBuilder) OperationCount() int {
	return len(tb.operations)
}
