package ps

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v6/plumbing"
)

var (
	ErrUnknownBranch = errors.New("unknown branch")
	ErrDiverged      = errors.New("branches have diverged")
)

// Branch creates a branch at HEAD, or at from when it is non-nil. Saves
// keep going to the current branch until Checkout switches.
func (p *Persistence) Branch(name string, from *Transaction) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}

	p.Lock()
	defer p.Unlock()

	hash := p.headHash()
	if from != nil {
		hash = plumbing.NewHash(from.Id)
	}
	if hash == plumbing.ZeroHash {
		return fmt.Errorf("nothing saved yet to branch from")
	}

	branchRef := plumbing.NewBranchReferenceName(name)
	if _, err := p.repo.Reference(branchRef, false); err == nil {
		return fmt.Errorf("branch %s already exists", name)
	}
	return p.repo.Storer.SetReference(plumbing.NewHashReference(branchRef, hash))
}

// Checkout points HEAD at an existing branch. Callers reload the catalog
// afterwards.
func (p *Persistence) Checkout(name string) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}

	p.Lock()
	defer p.Unlock()

	branchRef := plumbing.NewBranchReferenceName(name)
	if _, err := p.repo.Reference(branchRef, true); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownBranch, name)
	}
	if err := p.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
		return fmt.Errorf("failed to move HEAD: %w", err)
	}
	return p.syncWorktree()
}

// Merge fast-forwards the current branch to source. Saves of whole
// snapshots have no finer grain to merge on, so diverged branches are
// refused with ErrDiverged.
func (p *Persistence) Merge(source string) (Transaction, error) {
	if err := p.ensureInitialized(); err != nil {
		return Transaction{}, err
	}

	p.Lock()
	defer p.Unlock()

	headRef, err := p.repo.Head()
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to get HEAD: %w", err)
	}
	sourceRef, err := p.repo.Reference(plumbing.NewBranchReferenceName(source), true)
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: %s", ErrUnknownBranch, source)
	}

	headCommit, err := p.repo.CommitObject(headRef.Hash())
	if err != nil {
		return Transaction{}, err
	}
	sourceCommit, err := p.repo.CommitObject(sourceRef.Hash())
	if err != nil {
		return Transaction{}, err
	}

	// already contained in HEAD
	if merged, err := sourceCommit.IsAncestor(headCommit); err != nil {
		return Transaction{}, fmt.Errorf("failed to check ancestry: %w", err)
	} else if merged || sourceCommit.Hash == headCommit.Hash {
		return commitTransaction(headCommit), nil
	}

	canFF, err := headCommit.IsAncestor(sourceCommit)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to check ancestry: %w", err)
	}
	if !canFF {
		return Transaction{}, fmt.Errorf("%w: %s cannot be fast-forwarded to %s", ErrDiverged, headRef.Name().Short(), source)
	}

	if headRef.Name().IsBranch() {
		if err := p.repo.Storer.SetReference(plumbing.NewHashReference(headRef.Name(), sourceRef.Hash())); err != nil {
			return Transaction{}, fmt.Errorf("failed to update branch: %w", err)
		}
	}
	if err := p.syncWorktree(); err != nil {
		return Transaction{}, err
	}
	return commitTransaction(sourceCommit), nil
}

// ListBranches returns all branch names
func (p *Persistence) ListBranches() ([]string, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}

	refs, err := p.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}

	branches := []string{}
	refs.ForEach(func(ref *plumbing.Reference) error {
		branches = append(branches, ref.Name().Short())
		return nil
	})
	return branches, nil
}

// CurrentBranch returns the branch HEAD points at. Before the first save
// that is the default branch.
func (p *Persistence) CurrentBranch() (string, error) {
	if err := p.ensureInitialized(); err != nil {
		return "", err
	}

	head, err := p.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	if head.Type() == plumbing.SymbolicReference {
		return head.Target().Short(), nil
	}
	return "", fmt.Errorf("HEAD is detached at %s", head.Hash().String()[:7])
}

func (p *Persistence) DeleteBranch(name string) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}

	if current, err := p.CurrentBranch(); err == nil && current == name {
		return fmt.Errorf("cannot delete the currently checked out branch '%s'", name)
	}

	branchRef := plumbing.NewBranchReferenceName(name)
	if _, err := p.repo.Reference(branchRef, false); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownBranch, name)
	}
	return p.repo.Storer.RemoveReference(branchRef)
}
