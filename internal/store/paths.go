package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/harunnryd/kiki/internal/config"
	kerrors "github.com/harunnryd/kiki/internal/errors"
)

const slotExt = ".json"

var slotNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ResolveWorkspacePath resolves the configured workspace path.
// If empty, it falls back to ~/.kiki/workspace.
func ResolveWorkspacePath(workspacePath string) (string, error) {
	if trimmed := strings.TrimSpace(workspacePath); trimmed != "" {
		return config.ExpandPath(trimmed)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kiki", "workspace"), nil
}

func SlotsDir(basePath string) string {
	return filepath.Join(basePath, "slots")
}

func LockPath(basePath string) string {
	return filepath.Join(basePath, "workspace.lock")
}

// SlotPath returns the file backing a named slot.
func SlotPath(basePath, name string) (string, error) {
	if !slotNamePattern.MatchString(name) || strings.Contains(name, "..") {
		return "", kerrors.InvalidInput(fmt.Sprintf("slot name %q", name))
	}
	return filepath.Join(SlotsDir(basePath), name+slotExt), nil
}
