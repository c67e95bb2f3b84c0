// Package filemirror stores the sealed credential in a single file readable only by the owner.
package filemirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/target/companion-client/internal/ports"
)

// Mirror implements ports.CredentialMirror on the local filesystem.
type Mirror struct {
	path string
}

var _ ports.CredentialMirror = (*Mirror)(nil)

// New returns a mirror writing to path. The parent directory is created on first save.
func New(path string) (*Mirror, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("credential file path is required")
	}
	return &Mirror{path: filepath.Clean(path)}, nil
}

// Path returns the file location.
func (m *Mirror) Path() string { return m.path }

// Save writes atomically: a temp file in the same directory is renamed over the target.
func (m *Mirror) Save(_ context.Context, sealed string) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func(cause error) error {
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return errors.Join(cause, fmt.Errorf("remove temp file: %w", rmErr))
		}
		return cause
	}

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return cleanup(fmt.Errorf("chmod temp file: %w", err))
	}
	if _, err := tmp.WriteString(sealed); err != nil {
		_ = tmp.Close()
		return cleanup(fmt.Errorf("write temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return cleanup(fmt.Errorf("close temp file: %w", err))
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		return cleanup(fmt.Errorf("rename credential file: %w", err))
	}
	return nil
}

func (m *Mirror) Load(_ context.Context) (string, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read credential file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (m *Mirror) Remove(_ context.Context) error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}
