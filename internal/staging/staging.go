// Package staging manages per-owner scratch directories for in-flight files.
// Every operation works inside its own workspace named
// "<owner>-<unix>-<uuid>" so concurrent operations never collide and a
// periodic sweep can age out leftovers from crashed runs.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Workspace is one operation's private directory under the staging root.
type Workspace struct {
	OwnerID int64
	Path    string
}

// NewWorkspace creates a fresh workspace directory for the owner.
func NewWorkspace(stagingDir string, ownerID int64) (*Workspace, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, fmt.Errorf("staging: staging directory not configured")
	}
	name := fmt.Sprintf("%d-%d-%s", ownerID, time.Now().Unix(), uuid.NewString())
	path := filepath.Join(stagingDir, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("staging: create workspace: %w", err)
	}
	return &Workspace{OwnerID: ownerID, Path: path}, nil
}

// File returns the path of a file inside the workspace.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.Path, filepath.Base(name))
}

// Remove deletes the workspace and everything in it.
func (w *Workspace) Remove() error {
	if w == nil || w.Path == "" {
		return nil
	}
	return os.RemoveAll(w.Path)
}

// ParseOwner extracts the owner id from a workspace directory name. The
// second result is false for names that do not follow the workspace layout.
func ParseOwner(dirName string) (int64, bool) {
	head, _, found := strings.Cut(dirName, "-")
	if !found {
		return 0, false
	}
	owner, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0, false
	}
	return owner, true
}
