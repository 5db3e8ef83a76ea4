package poller

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Cursor remembers the last seen event id across restarts. Purely advisory.
type Cursor interface {
	Load() (string, error)
	Save(id string) error
}

type memoryCursor struct {
	mu sync.Mutex
	id string
}

func NewMemoryCursor() Cursor { return &memoryCursor{} }

func (c *memoryCursor) Load() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id, nil
}

func (c *memoryCursor) Save(id string) error {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
	return nil
}

// FileCursor echoes the id into a small file, replaced atomically on every save.
type FileCursor struct {
	path string
}

func NewFileCursor(path string) *FileCursor { return &FileCursor{path: path} }

func (c *FileCursor) Load() (string, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cursor: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (c *FileCursor) Save(id string) error {
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".cursor-*")
	if err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	if _, err := tmp.WriteString(id + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write cursor: %w", err)
	}
	return os.Rename(tmp.Name(), c.path)
}
