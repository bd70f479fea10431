package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/openmined/syncvault/internal/config"
	"github.com/openmined/syncvault/internal/objstore"
	"github.com/openmined/syncvault/internal/vfs"
)

const (
	gitRemoteName = "origin"
	gitBranchName = "vault"
)

var (
	gitBranch       = plumbing.NewBranchReferenceName(gitBranchName)
	gitRemoteBranch = plumbing.NewRemoteReferenceName(gitRemoteName, gitBranchName)
	gitFetchSpec    = gitconfig.RefSpec(fmt.Sprintf("+%s:%s", gitBranch, gitRemoteBranch))
	gitPushSpec     = gitconfig.RefSpec(fmt.Sprintf("%s:%s", gitBranch, gitBranch))
)

// Git uses the local mirror as a git work tree. Every push is a commit on
// top of the remote head that adds new objects and the branch ref, so the
// history only ever fast-forwards.
type Git struct {
	dir   string
	url   string
	auth  gittransport.AuthMethod
	envID string
	local *vfs.FS
}

func NewGit(dir string, cfg *config.GitConfig, envID string) *Git {
	g := &Git{dir: dir, url: cfg.URL, envID: envID, local: vfs.NewOS(dir)}
	if cfg.Token != "" {
		user := cfg.Username
		if user == "" {
			// token-only auth on common forges accepts any user name
			user = "syncvault"
		}
		g.auth = &http.BasicAuth{Username: user, Password: cfg.Token}
	}
	return g
}

func (g *Git) Name() string {
	return config.TransportGit
}

func (g *Git) RemoteIndexExists(ctx context.Context) (bool, error) {
	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: gitRemoteName,
		URLs: []string{g.url},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: g.auth})
	if errors.Is(err, gittransport.ErrEmptyRemoteRepository) {
		return false, nil
	}
	if err != nil {
		return false, wrap("git ls-remote", err)
	}
	for _, ref := range refs {
		if ref.Name() == gitBranch {
			return true, nil
		}
	}
	return false, nil
}

func (g *Git) CloneAll(ctx context.Context) error {
	return g.pull(ctx, func(string) bool { return true })
}

func (g *Git) PullLatest(ctx context.Context, branch string) error {
	if err := objstore.ValidBranch(branch); err != nil {
		return err
	}
	want := objstore.RefPath(branch)
	return g.pull(ctx, func(key string) bool { return key == want })
}

func (g *Git) pull(ctx context.Context, wantRef func(string) bool) error {
	repo, err := g.open()
	if err != nil {
		return err
	}
	head, err := g.fetch(ctx, repo)
	if err != nil || head == nil {
		return err
	}
	tree, err := head.Tree()
	if err != nil {
		return wrap("git tree", err)
	}

	fetched := 0
	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case immutable(f.Name):
			ok, err := g.local.Exists(f.Name)
			if err != nil || ok {
				return err
			}
		case isRef(f.Name) && wantRef(f.Name):
		default:
			return nil
		}
		content, err := f.Contents()
		if err != nil {
			return err
		}
		fetched++
		return g.local.WriteFile(f.Name, []byte(content))
	})
	if err != nil {
		return wrap("git checkout objects", err)
	}

	slog.Debug("transport pull", "transport", g.Name(), "commit", head.Hash.String(), "files", fetched)
	return nil
}

func (g *Git) PushLatest(ctx context.Context, branch string) error {
	if err := objstore.ValidBranch(branch); err != nil {
		return err
	}
	repo, err := g.open()
	if err != nil {
		return err
	}
	head, err := g.fetch(ctx, repo)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return wrap("git worktree", err)
	}

	var tree *object.Tree
	if head != nil {
		// base the commit on the remote head without touching the files
		if err := repo.Storer.SetReference(plumbing.NewHashReference(gitBranch, head.Hash)); err != nil {
			return wrap("git set branch", err)
		}
		if err := wt.Reset(&git.ResetOptions{Commit: head.Hash, Mode: git.MixedReset}); err != nil {
			return wrap("git reset", err)
		}
		if tree, err = head.Tree(); err != nil {
			return wrap("git tree", err)
		}
	}

	staged := 0
	stage := func(key string) error {
		if _, err := wt.Add(key); err != nil {
			return wrap("git add "+key, err)
		}
		staged++
		return nil
	}

	for _, prefix := range objectPrefixes {
		err := g.local.Walk(prefix[:len(prefix)-1], func(fi vfs.FileInfo) error {
			if tree != nil {
				if _, err := tree.FindEntry(fi.Path); err == nil {
					return nil
				}
			}
			return stage(fi.Path)
		})
		if err != nil {
			return err
		}
	}

	ref := objstore.RefPath(branch)
	local, err := g.local.ReadFile(ref)
	if err == nil && !g.sameInTree(tree, ref, local) {
		if err := stage(ref); err != nil {
			return err
		}
	}
	if staged == 0 {
		return nil
	}

	hash, err := wt.Commit(fmt.Sprintf("sync %s from %s", branch, g.envID), &git.CommitOptions{
		Author: &object.Signature{
			Name:  "syncvault",
			Email: g.envID + "@syncvault.local",
			When:  time.Now(),
		},
	})
	if err != nil {
		return wrap("git commit", err)
	}

	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: gitRemoteName,
		RefSpecs:   []gitconfig.RefSpec{gitPushSpec},
		Auth:       g.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return wrap("git push", err)
	}

	slog.Info("transport push", "transport", g.Name(), "branch", branch, "commit", hash.String(), "files", staged)
	return nil
}

func (g *Git) sameInTree(tree *object.Tree, key string, data []byte) bool {
	if tree == nil {
		return false
	}
	f, err := tree.File(key)
	if err != nil {
		return false
	}
	content, err := f.Contents()
	return err == nil && bytes.Equal([]byte(content), data)
}

// open returns the mirror repository, creating it with the remote
// configured on first use.
func (g *Git) open() (*git.Repository, error) {
	repo, err := git.PlainOpen(g.dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, wrap("git open", err)
	}

	repo, err = git.PlainInitWithOptions(g.dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: gitBranch},
	})
	if err != nil {
		return nil, wrap("git init", err)
	}
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: gitRemoteName,
		URLs: []string{g.url},
	})
	if err != nil {
		return nil, wrap("git remote", err)
	}
	return repo, nil
}

// fetch updates the remote-tracking branch and returns its commit, or nil
// when the remote has no vault branch yet.
func (g *Git) fetch(ctx context.Context, repo *git.Repository) (*object.Commit, error) {
	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: gitRemoteName,
		RefSpecs:   []gitconfig.RefSpec{gitFetchSpec},
		Auth:       g.auth,
		Tags:       git.NoTags,
	})
	switch {
	case err == nil,
		errors.Is(err, git.NoErrAlreadyUpToDate),
		errors.Is(err, gittransport.ErrEmptyRemoteRepository),
		errors.Is(err, git.NoMatchingRefSpecError{}):
	default:
		return nil, wrap("git fetch", err)
	}

	ref, err := repo.Reference(gitRemoteBranch, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("git ref", err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, wrap("git commit object", err)
	}
	return commit, nil
}
