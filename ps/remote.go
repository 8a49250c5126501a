package ps

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/config"
	"github.com/go-git/go-git/v6/plumbing/transport"
	"github.com/go-git/go-git/v6/plumbing/transport/http"
)

const defaultRemote = "origin"

// RemoteAuth carries credentials for pushing or pulling the snapshot
// history. A token is sent as basic auth with a fixed user name.
type RemoteAuth struct {
	Token    string
	Username string
	Password string
}

func (auth *RemoteAuth) method() transport.AuthMethod {
	switch {
	case auth == nil:
		return nil
	case auth.Token != "":
		return &http.BasicAuth{Username: "minidb", Password: auth.Token}
	case auth.Username != "":
		return &http.BasicAuth{Username: auth.Username, Password: auth.Password}
	}
	return nil
}

type Remote struct {
	Name string
	URLs []string
}

func (p *Persistence) AddRemote(name, url string) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}

	if _, err := p.repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}}); err != nil {
		return fmt.Errorf("failed to add remote '%s': %w", name, err)
	}
	return nil
}

func (p *Persistence) Remotes() ([]Remote, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}

	remotes, err := p.repo.Remotes()
	if err != nil {
		return nil, fmt.Errorf("failed to list remotes: %w", err)
	}

	out := make([]Remote, len(remotes))
	for i, r := range remotes {
		out[i] = Remote{Name: r.Config().Name, URLs: r.Config().URLs}
	}
	return out, nil
}

func (p *Persistence) RemoveRemote(name string) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}

	if err := p.repo.DeleteRemote(name); err != nil {
		return fmt.Errorf("failed to remove remote '%s': %w", name, err)
	}
	return nil
}

// Push publishes the local save history to a remote. An empty name means
// origin.
func (p *Persistence) Push(remoteName string, auth *RemoteAuth) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}
	if remoteName == "" {
		remoteName = defaultRemote
	}

	p.RLock()
	defer p.RUnlock()

	err := p.repo.Push(&git.PushOptions{RemoteName: remoteName, Auth: auth.method()})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push to '%s': %w", remoteName, err)
	}
	return nil
}

// Pull fast-forwards to the remote's history. Callers reload the catalog
// afterwards.
func (p *Persistence) Pull(remoteName string, auth *RemoteAuth) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}
	if remoteName == "" {
		remoteName = defaultRemote
	}

	p.Lock()
	defer p.Unlock()

	wt, err := p.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	err = wt.Pull(&git.PullOptions{RemoteName: remoteName, Auth: auth.method()})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull from '%s': %w", remoteName, err)
	}
	return nil
}
