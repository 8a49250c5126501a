package ps

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/nickyhof/MiniDB/core"
)

// createBlob stores data straight in the object database, no worktree I/O.
func (p *Persistence) createBlob(data []byte) (plumbing.Hash, error) {
	obj := p.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	writer, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to create blob writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write blob data: %w", err)
	}
	writer.Close()

	hash, err := p.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store blob: %w", err)
	}
	return hash, nil
}

// headHash returns the HEAD commit, or ZeroHash before the first commit.
func (p *Persistence) headHash() plumbing.Hash {
	ref, err := p.repo.Head()
	if err != nil {
		return plumbing.ZeroHash
	}
	return ref.Hash()
}

// getCurrentTree returns the root tree of HEAD, ZeroHash when empty.
func (p *Persistence) getCurrentTree() (plumbing.Hash, error) {
	head := p.headHash()
	if head == plumbing.ZeroHash {
		return plumbing.ZeroHash, nil
	}

	commit, err := p.repo.CommitObject(head)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to get head commit: %w", err)
	}
	return commit.TreeHash, nil
}

func (p *Persistence) getTreeEntries(treeHash plumbing.Hash) (map[string]object.TreeEntry, error) {
	entries := make(map[string]object.TreeEntry)
	if treeHash == plumbing.ZeroHash {
		return entries, nil
	}

	tree, err := object.GetTree(p.repo.Storer, treeHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	for _, entry := range tree.Entries {
		entries[entry.Name] = entry
	}
	return entries, nil
}

func (p *Persistence) buildTree(entries map[string]object.TreeEntry) (plumbing.Hash, error) {
	if len(entries) == 0 {
		return plumbing.ZeroHash, nil
	}

	list := make([]object.TreeEntry, 0, len(entries))
	for _, entry := range entries {
		list = append(list, entry)
	}

	// git orders directories as if their name had a trailing slash
	sortName := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.Slice(list, func(i, j int) bool {
		return sortName(list[i]) < sortName(list[j])
	})

	obj := p.repo.Storer.NewEncodedObject()
	if err := (&object.Tree{Entries: list}).Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode tree: %w", err)
	}

	hash, err := p.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store tree: %w", err)
	}
	return hash, nil
}

// TreeChange is one blob write or removal at a slash separated path.
type TreeChange struct {
	Path     string
	BlobHash plumbing.Hash
	IsDelete bool
}

// batchUpdateTree applies all changes, rebuilding each touched directory
// once. Directories left empty are dropped.
func (p *Persistence) batchUpdateTree(rootTreeHash plumbing.Hash, changes []TreeChange) (plumbing.Hash, error) {
	if len(changes) == 0 {
		return rootTreeHash, nil
	}

	entries, err := p.getTreeEntries(rootTreeHash)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	nested := make(map[string][]TreeChange)
	for _, change := range changes {
		dir, rest, isNested := strings.Cut(change.Path, "/")
		if isNested {
			nested[dir] = append(nested[dir], TreeChange{Path: rest, BlobHash: change.BlobHash, IsDelete: change.IsDelete})
			continue
		}
		if change.IsDelete {
			delete(entries, dir)
		} else {
			entries[dir] = object.TreeEntry{Name: dir, Mode: filemode.Regular, Hash: change.BlobHash}
		}
	}

	for dir, sub := range nested {
		subTree := plumbing.ZeroHash
		if existing, ok := entries[dir]; ok && existing.Mode == filemode.Dir {
			subTree = existing.Hash
		}

		newSubTree, err := p.batchUpdateTree(subTree, sub)
		if err != nil {
			return plumbing.ZeroHash, err
		}

		if newSubTree == plumbing.ZeroHash {
			delete(entries, dir)
		} else {
			entries[dir] = object.TreeEntry{Name: dir, Mode: filemode.Dir, Hash: newSubTree}
		}
	}

	return p.buildTree(entries)
}

// createCommitDirect commits treeHash on top of HEAD and moves the branch.
func (p *Persistence) createCommitDirect(treeHash plumbing.Hash, identity core.Identity, message string) (Transaction, error) {
	if treeHash == plumbing.ZeroHash {
		obj := p.repo.Storer.NewEncodedObject()
		if err := (&object.Tree{}).Encode(obj); err != nil {
			return Transaction{}, fmt.Errorf("failed to encode empty tree: %w", err)
		}
		var err error
		if treeHash, err = p.repo.Storer.SetEncodedObject(obj); err != nil {
			return Transaction{}, fmt.Errorf("failed to store empty tree: %w", err)
		}
	}

	var parents []plumbing.Hash
	headRef, err := p.repo.Head()
	if err == nil {
		parents = []plumbing.Hash{headRef.Hash()}
	}

	sig := object.Signature{
		Name:  identity.Name,
		Email: identity.Email,
		When:  time.Now(),
	}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     treeHash,
		ParentHashes: parents,
	}

	obj := p.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return Transaction{}, fmt.Errorf("failed to encode commit: %w", err)
	}
	commitHash, err := p.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to store commit: %w", err)
	}

	branch := plumbing.Master
	if headRef != nil && headRef.Name().IsBranch() {
		branch = headRef.Name()
	}
	if err := p.repo.Storer.SetReference(plumbing.NewHashReference(branch, commitHash)); err != nil {
		return Transaction{}, fmt.Errorf("failed to update HEAD: %w", err)
	}

	return Transaction{
		Id:      commitHash.String(),
		When:    sig.When,
		Author:  formatAuthor(sig),
		Message: message,
	}, nil
}

// syncWorktree checks HEAD out on disk so a file repository stays usable
// with plain git tooling. Memory repositories read trees directly.
func (p *Persistence) syncWorktree() error {
	if p.isMemoryMode {
		return nil
	}

	wt, err := p.repo.Worktree()
	if err != nil {
		return err
	}

	head := p.headHash()
	commit, err := p.repo.CommitObject(head)
	if err != nil {
		return err
	}
	tree, err := commit.Tree()
	if err != nil {
		return err
	}

	// hard reset refuses an empty tree, clean up by hand
	if len(tree.Entries) == 0 {
		fs := wt.Filesystem
		entries, err := fs.ReadDir("/")
		if err != nil {
			return nil
		}
		for _, entry := range entries {
			if entry.Name() != ".git" {
				fs.Remove(entry.Name())
			}
		}
		return nil
	}

	return wt.Reset(&git.ResetOptions{
		Mode:   git.HardReset,
		Commit: head,
	})
}

func (p *Persistence) treeAt(commitHash plumbing.Hash) (*object.Tree, error) {
	commit, err := p.repo.CommitObject(commitHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", commitHash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	return tree, nil
}

// readFileAt reads filePath from the tree of the given commit.
func (p *Persistence) readFileAt(commitHash plumbing.Hash, filePath string) ([]byte, error) {
	if commitHash == plumbing.ZeroHash {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, filePath)
	}

	tree, err := p.treeAt(commitHash)
	if err != nil {
		return nil, err
	}

	file, err := tree.File(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, filePath)
	}

	content, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	return []byte(content), nil
}

// listFilesAt lists the regular files directly under dir at the given
// commit. A missing directory is empty.
func (p *Persistence) listFilesAt(commitHash plumbing.Hash, dir string) ([]string, error) {
	if commitHash == plumbing.ZeroHash {
		return nil, nil
	}

	tree, err := p.treeAt(commitHash)
	if err != nil {
		return nil, err
	}

	sub, err := tree.Tree(dir)
	if err != nil {
		return nil, nil
	}

	var names []string
	for _, entry := range sub.Entries {
		if entry.Mode != filemode.Dir {
			names = append(names, entry.Name)
		}
	}
	return names, nil
}
