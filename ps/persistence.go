package ps

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/storage/filesystem"
	"github.com/go-git/go-git/v6/storage/memory"
)

var (
	ErrNotInitialized = errors.New("persistence layer not initialized")
)

// Persistence is a git-backed SnapshotStore. Every save is one commit
// holding a snapshot blob per table, so the full history of the catalog
// stays readable.
type Persistence struct {
	repo         *git.Repository
	mu           sync.RWMutex
	isMemoryMode bool
}

func (p *Persistence) IsInitialized() bool {
	return p != nil && p.repo != nil
}

func (p *Persistence) ensureInitialized() error {
	if !p.IsInitialized() {
		return ErrNotInitialized
	}
	return nil
}

func (p *Persistence) RLock()   { p.mu.RLock() }
func (p *Persistence) RUnlock() { p.mu.RUnlock() }
func (p *Persistence) Lock()    { p.mu.Lock() }
func (p *Persistence) Unlock()  { p.mu.Unlock() }

func NewMemoryPersistence() (*Persistence, error) {
	repo, err := git.Init(memory.NewStorage(), git.WithWorkTree(memfs.New()))
	if err != nil {
		return nil, err
	}

	return &Persistence{
		repo:         repo,
		isMemoryMode: true,
	}, nil
}

// NewFilePersistence opens the repository under baseDir, creating it when
// missing. With a non-nil gitUrl the repository is cloned first.
func NewFilePersistence(baseDir string, gitUrl *string) (*Persistence, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	wt := osfs.New(baseDir)
	dot, err := wt.Chroot(".git")
	if err != nil {
		return nil, err
	}

	storer := filesystem.NewStorageWithOptions(
		dot,
		cache.NewObjectLRUDefault(),
		filesystem.Options{ExclusiveAccess: true})

	var repo *git.Repository
	switch {
	case gitUrl != nil:
		repo, err = git.Clone(storer, wt, &git.CloneOptions{URL: *gitUrl})
	default:
		if _, statErr := os.Stat(dot.Root()); statErr != nil {
			repo, err = git.Init(storer, git.WithWorkTree(wt))
		} else {
			repo, err = git.Open(storer, wt)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", baseDir, err)
	}

	return &Persistence{repo: repo}, nil
}
