package localexec

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/gate"
)

// Patcher implements gate.PatchApplier by writing files directly.
type Patcher struct {
	logger *slog.Logger
}

var _ gate.PatchApplier = (*Patcher)(nil)

// NewPatcher creates a Patcher. A nil logger discards output.
func NewPatcher(logger *slog.Logger) *Patcher {
	if logger == nil {
		logger = ai.NopLogger()
	}
	return &Patcher{logger: logger}
}

// Apply checks every file operation against the disk first and only then
// applies them in order, so a patch with a bad operation changes nothing.
// The summary lists one "A", "M" or "D" line per file.
func (p *Patcher) Apply(ctx context.Context, patch *ai.Patch, workdir string, sandbox bool) (string, error) {
	if patch == nil || len(patch.Files) == 0 {
		return "", fmt.Errorf("empty patch")
	}

	paths := make([]string, len(patch.Files))
	for i, f := range patch.Files {
		path := f.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(workdir, path)
		}
		path = filepath.Clean(path)
		paths[i] = path

		_, err := os.Stat(path)
		exists := err == nil
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", f.Path, err)
		}
		switch f.Op {
		case ai.PatchAdd:
			if exists {
				return "", fmt.Errorf("add %s: file already exists", f.Path)
			}
		case ai.PatchUpdate, ai.PatchDelete:
			if !exists {
				return "", fmt.Errorf("%s %s: file does not exist", f.Op, f.Path)
			}
		default:
			return "", fmt.Errorf("%s: unknown op %q", f.Path, f.Op)
		}
	}

	var sb strings.Builder
	for i, f := range patch.Files {
		if err := ctx.Err(); err != nil {
			return sb.String(), err
		}
		path := paths[i]
		switch f.Op {
		case ai.PatchAdd:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return sb.String(), fmt.Errorf("add %s: create parent directory: %w", f.Path, err)
			}
			if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
				return sb.String(), fmt.Errorf("add %s: %w", f.Path, err)
			}
			fmt.Fprintf(&sb, "A %s\n", f.Path)
		case ai.PatchUpdate:
			if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
				return sb.String(), fmt.Errorf("update %s: %w", f.Path, err)
			}
			fmt.Fprintf(&sb, "M %s\n", f.Path)
		case ai.PatchDelete:
			if err := os.Remove(path); err != nil {
				return sb.String(), fmt.Errorf("delete %s: %w", f.Path, err)
			}
			fmt.Fprintf(&sb, "D %s\n", f.Path)
		}
	}

	p.logger.Debug("patch applied", "files", patch.Paths(), "sandbox", sandbox)
	return strings.TrimSuffix(sb.String(), "\n"), nil
}
