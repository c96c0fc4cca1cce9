package hosting

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"
)

const (
	importBranch  = "main"
	importMessage = "Initial commit"
)

// Importer copies seed content from a source repository into a freshly
// created one as a single initial commit.
type Importer struct {
	token   string
	workDir string
	author  object.Signature
	logger  *zap.Logger
}

// NewImporter constructs an Importer. workDir "" uses the system temp dir.
func NewImporter(token, workDir string, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		token:   token,
		workDir: workDir,
		author:  object.Signature{Name: "Course Portal", Email: "portal@noreply.local"},
		logger:  logger,
	}
}

// seedSource is a parsed import URL of the form url[#branch][:path].
type seedSource struct {
	URL    string
	Branch string
	Path   string
}

func parseSeedSource(raw string) seedSource {
	src := seedSource{URL: raw}
	if i := strings.Index(raw, "#"); i >= 0 {
		src.URL = raw[:i]
		ref := raw[i+1:]
		if j := strings.Index(ref, ":"); j >= 0 {
			src.Branch = ref[:j]
			src.Path = ref[j+1:]
		} else {
			src.Branch = ref
		}
	}
	src.Path = strings.Trim(src.Path, "/")
	return src
}

// seedSelection joins the source path and the requested seed path. An empty
// result selects the whole repository.
func seedSelection(sourcePath, seedPath string) string {
	seedPath = strings.TrimSpace(seedPath)
	if seedPath == "*" || seedPath == "/*" {
		seedPath = ""
	}
	seedPath = strings.Trim(seedPath, "/")
	switch {
	case sourcePath != "" && seedPath != "":
		return sourcePath + "/" + seedPath
	case sourcePath != "":
		return sourcePath
	default:
		return seedPath
	}
}

func (im *Importer) auth() transport.AuthMethod {
	if im.token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: im.token}
}

// Import clones sourceURL, selects seedPath and pushes it to targetURL.
func (im *Importer) Import(ctx context.Context, sourceURL, targetURL, seedPath string) error {
	start := time.Now()
	src := parseSeedSource(sourceURL)
	selection := seedSelection(src.Path, seedPath)

	cloneDir, err := os.MkdirTemp(im.workDir, "seed-clone-")
	if err != nil {
		return fmt.Errorf("create clone dir: %w", err)
	}
	defer os.RemoveAll(cloneDir)

	targetDir, err := os.MkdirTemp(im.workDir, "seed-target-")
	if err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}
	defer os.RemoveAll(targetDir)

	cloneOpts := &git.CloneOptions{
		URL:   src.URL,
		Auth:  im.auth(),
		Depth: 1,
	}
	if src.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(src.Branch)
		cloneOpts.SingleBranch = true
	}
	if _, err := git.PlainCloneContext(ctx, cloneDir, false, cloneOpts); err != nil {
		return fmt.Errorf("clone seed %s: %w", src.URL, err)
	}

	from := cloneDir
	if selection != "" {
		from = filepath.Join(cloneDir, filepath.FromSlash(selection))
	}
	if err := copySeed(from, targetDir); err != nil {
		return fmt.Errorf("copy seed %q: %w", selection, err)
	}

	repo, err := git.PlainInitWithOptions(targetDir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(importBranch)},
	})
	if err != nil {
		return fmt.Errorf("init target: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("stage seed: %w", err)
	}
	author := im.author
	author.When = time.Now()
	if _, err := wt.Commit(importMessage, &git.CommitOptions{Author: &author, AllowEmptyCommits: true}); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{targetURL}}); err != nil {
		return fmt.Errorf("add remote: %w", err)
	}

	refSpec := gitconfig.RefSpec("refs/heads/" + importBranch + ":refs/heads/" + importBranch)
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       im.auth(),
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("push seed to %s: %w", targetURL, err)
	}

	im.logger.Info("seed pushed",
		zap.String("source", src.URL),
		zap.String("selection", selection),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// copySeed copies from into dst. A directory contributes its contents; a
// single file lands at the root of dst. Git metadata is skipped.
func copySeed(from, dst string) error {
	info, err := os.Stat(from)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(from, filepath.Join(dst, filepath.Base(from)), info.Mode())
	}

	return filepath.WalkDir(from, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(from, path)
		if err != nil || rel == "." {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, fi.Mode())
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
