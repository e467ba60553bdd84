// Package git reports the version control state of the active project.
package git

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNotRepository is returned when the project is not inside a git work tree
var ErrNotRepository = errors.New("not a git repository")

// Repo is an opened repository
type Repo struct {
	path string
	repo *git.Repository
}

// FileStatus is the status of a single changed file
type FileStatus struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

// Info summarizes the repository for the control endpoints
type Info struct {
	Branch    string       `json:"branch,omitempty"`
	Head      string       `json:"head,omitempty"`
	Detached  bool         `json:"detached,omitempty"`
	Clean     bool         `json:"clean"`
	Modified  []FileStatus `json:"modified"`
	Staged    []FileStatus `json:"staged"`
	Untracked []string     `json:"untracked"`
}

// Open opens the repository containing path
func Open(path string) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
		}
		return nil, fmt.Errorf("open git repository: %w", err)
	}
	return &Repo{path: path, repo: repo}, nil
}

// Head returns the current branch name and commit hash. The branch is empty
// when HEAD is detached; both are empty in a repository without commits.
func (r *Repo) Head() (branch, hash string, err error) {
	ref, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", "", nil
		}
		return "", "", fmt.Errorf("resolve HEAD: %w", err)
	}
	if ref.Name().IsBranch() {
		branch = ref.Name().Short()
	}
	return branch, ref.Hash().String(), nil
}

// Info reads HEAD and the work tree status
func (r *Repo) Info() (*Info, error) {
	branch, hash, err := r.Head()
	if err != nil {
		return nil, err
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}

	info := &Info{
		Branch:    branch,
		Head:      hash,
		Detached:  hash != "" && branch == "",
		Clean:     status.IsClean(),
		Modified:  []FileStatus{},
		Staged:    []FileStatus{},
		Untracked: []string{},
	}

	for path, fs := range status {
		if fs.Worktree == git.Untracked {
			info.Untracked = append(info.Untracked, path)
			continue
		}
		if fs.Staging != git.Unmodified {
			info.Staged = append(info.Staged, FileStatus{Path: path, Status: statusName(fs.Staging)})
		}
		if fs.Worktree != git.Unmodified {
			info.Modified = append(info.Modified, FileStatus{Path: path, Status: statusName(fs.Worktree)})
		}
	}

	// status is a map; keep responses stable
	sort.Slice(info.Modified, func(i, j int) bool { return info.Modified[i].Path < info.Modified[j].Path })
	sort.Slice(info.Staged, func(i, j int) bool { return info.Staged[i].Path < info.Staged[j].Path })
	sort.Strings(info.Untracked)

	return info, nil
}

// ProjectInfo opens the repository at path and returns its Info
func ProjectInfo(path string) (*Info, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	return r.Info()
}

func statusName(code git.StatusCode) string {
	switch code {
	case git.Unmodified:
		return "unmodified"
	case git.Untracked:
		return "untracked"
	case git.Modified:
		return "modified"
	case git.Added:
		return "added"
	case git.Deleted:
		return "deleted"
	case git.Renamed:
		return "renamed"
	case git.Copied:
		return "copied"
	case git.UpdatedButUnmerged:
		return "updated-but-unmerged"
	default:
		return "unknown"
	}
}
