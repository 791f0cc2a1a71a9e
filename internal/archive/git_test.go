package archive

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestGitDestination(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}

	repoDir := newClone(t)

	dest := NewGitDestination(repoDir, "ledger.jsonl", "main")

	// First write.
	data1 := []byte(`{"version":"1","type":"header"}` + "\n")
	if err := dest.Write(context.Background(), data1); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// Verify file exists.
	got, err := os.ReadFile(filepath.Join(repoDir, "ledger.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(got) != string(data1) {
		t.Fatalf("file content mismatch: got %q", string(got))
	}

	// Second write with same data should be a no-op (no commit).
	if err := dest.Write(context.Background(), data1); err != nil {
		t.Fatalf("second write (no-op): %v", err)
	}

	// Third write with different data should commit.
	data2 := []byte(`{"version":"1","type":"header","timestamp":"2026-05-02T07:00:00Z","microlot_count":1,"event_count":4}` + "\n")
	if err := dest.Write(context.Background(), data2); err != nil {
		t.Fatalf("third write: %v", err)
	}

	got, err = os.ReadFile(filepath.Join(repoDir, "ledger.jsonl"))
	if err != nil {
		t.Fatalf("read file after update: %v", err)
	}
	if string(got) != string(data2) {
		t.Fatalf("file content mismatch after update: got %q", string(got))
	}

	// init + first + third; the unchanged second write made no commit.
	if n := commitCount(t, repoDir); n != "3" {
		t.Fatalf("commits = %s, want 3", n)
	}
	if subject := lastSubject(t, repoDir); subject != "archive: 1 microlots, 4 events as of 2026-05-02T07:00Z" {
		t.Errorf("commit subject = %q", subject)
	}
}

func TestCommitMessage(t *testing.T) {
	for _, tc := range []struct {
		data string
		want string
	}{
		{`{"version":"1","type":"header","timestamp":"2026-05-02T12:30:00+02:00","microlot_count":3,"event_count":17}` + "\n{}\n",
			"archive: 3 microlots, 17 events as of 2026-05-02T10:30Z"},
		{`{"type":"header"}`, "archive: update ledger export"},
		{`not json`, "archive: update ledger export"},
		{``, "archive: update ledger export"},
	} {
		if got := commitMessage([]byte(tc.data)); got != tc.want {
			t.Errorf("commitMessage(%q) = %q, want %q", tc.data, got, tc.want)
		}
	}
}

func TestGitDestination_SubDirectory(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}

	repoDir := newClone(t)

	dest := NewGitDestination(repoDir, "data/ledger.jsonl", "main")

	data := []byte(`{"type":"header"}` + "\n")
	if err := dest.Write(context.Background(), data); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(repoDir, "data", "ledger.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("content mismatch: got %q", string(got))
	}
}

// newClone creates a bare remote with one commit on main and returns a
// clone of it.
func newClone(t *testing.T) string {
	t.Helper()
	remoteDir := t.TempDir()
	run(t, remoteDir, "git", "init", "--bare")

	workDir := t.TempDir()
	run(t, workDir, "git", "clone", remoteDir, "repo")
	repoDir := filepath.Join(workDir, "repo")

	run(t, repoDir, "git", "config", "user.email", "archive@cafetrace.test")
	run(t, repoDir, "git", "config", "user.name", "Archive Test")
	run(t, repoDir, "git", "checkout", "-B", "main")

	if err := os.WriteFile(filepath.Join(repoDir, ".gitkeep"), nil, 0o644); err != nil {
		t.Fatalf("write .gitkeep: %v", err)
	}
	run(t, repoDir, "git", "add", ".")
	run(t, repoDir, "git", "commit", "-m", "init")
	run(t, repoDir, "git", "push", "origin", "main")
	return repoDir
}

func commitCount(t *testing.T, dir string) string {
	t.Helper()
	cmd := exec.Command("git", "rev-list", "--count", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("git rev-list: %v", err)
	}
	return strings.TrimSpace(string(out))
}

func lastSubject(t *testing.T, dir string) string {
	t.Helper()
	cmd := exec.Command("git", "log", "-1", "--format=%s")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("git log: %v", err)
	}
	return strings.TrimSpace(string(out))
}

func run(t *testing.T, dir string, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("%s %v failed: %v", name, args, err)
	}
}
