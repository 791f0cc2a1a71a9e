package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// Committer identity used when the clone has none configured.
const (
	gitAuthorName  = "cafetrace archive"
	gitAuthorEmail = "archive@cafetrace.invalid"
)

// GitDestination keeps the archive as a file in a local clone and pushes
// one commit per changed export, so the repository history doubles as an
// off-site audit trail of the ledger.
type GitDestination struct {
	repo   string // path to the local clone
	file   string // path of the archive inside the clone
	branch string
	output io.Writer // git's stdout and stderr
}

// NewGitDestination targets an existing clone at repo.
func NewGitDestination(repo, file, branch string) *GitDestination {
	return &GitDestination{repo: repo, file: file, branch: branch, output: os.Stderr}
}

func (d *GitDestination) String() string { return "git:" + d.repo + "@" + d.branch }

func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if err := d.git(ctx, "checkout", d.branch); err != nil {
		return fmt.Errorf("git checkout %s: %w", d.branch, err)
	}
	// Fails harmlessly when the branch does not exist upstream yet.
	_ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	path := filepath.Join(d.repo, d.file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", d.file, err)
	}

	if err := d.git(ctx, "add", d.file); err != nil {
		return fmt.Errorf("git add: %w", err)
	}
	if d.git(ctx, "diff", "--cached", "--quiet") == nil {
		return nil // identical export
	}
	for _, step := range [][]string{
		{"commit", "-m", commitMessage(data)},
		{"push", "origin", d.branch},
	} {
		if err := d.git(ctx, step...); err != nil {
			return fmt.Errorf("git %s: %w", step[0], err)
		}
	}
	return nil
}

// commitMessage summarises an export from its header line.
func commitMessage(data []byte) string {
	line, _, _ := bufio.NewReader(bytes.NewReader(data)).ReadLine()
	var h Header
	if json.Unmarshal(line, &h) != nil || h.Type != TypeHeader || h.Timestamp.IsZero() {
		return "archive: update ledger export"
	}
	return fmt.Sprintf("archive: %d microlots, %d events as of %s",
		h.MicrolotCount, h.EventCount, h.Timestamp.UTC().Format("2006-01-02T15:04Z"))
}

func (d *GitDestination) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	cmd.Stdout = d.output
	cmd.Stderr = d.output
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME="+gitAuthorName, "GIT_AUTHOR_EMAIL="+gitAuthorEmail,
		"GIT_COMMITTER_NAME="+gitAuthorName, "GIT_COMMITTER_EMAIL="+gitAuthorEmail,
	)
	return cmd.Run()
}
