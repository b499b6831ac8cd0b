package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mdlgate/internal/trust/models"
	"mdlgate/pkg/platform/sentinel"
	psync "mdlgate/pkg/platform/sync"
)

// TrustListFile is the fixed cache identifier of the trust list.
const TrustListFile = "trust-list.json"

// FileCache keeps the last good trust list and root PEMs on local disk.
// Writes go through a temp file and rename, so readers never see a partial file.
type FileCache struct {
	dir   string
	locks *psync.KeyedMutex
}

func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir, locks: psync.NewKeyedMutex()}
}

// Load returns the cached trust list or sentinel.ErrNotFound.
func (c *FileCache) Load(_ context.Context) (*models.CacheFile, error) {
	data, err := c.read(TrustListFile)
	if err != nil {
		return nil, err
	}
	var file models.CacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", TrustListFile, sentinel.ErrInvalidInput)
	}
	return &file, nil
}

func (c *FileCache) Save(_ context.Context, file *models.CacheFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trust cache: %w", err)
	}
	return c.write(TrustListFile, data)
}

func (c *FileCache) LoadRoot(_ context.Context, code string) ([]byte, error) {
	return c.read(rootFile(code))
}

func (c *FileCache) SaveRoot(_ context.Context, code string, pemData []byte) error {
	return c.write(rootFile(code), pemData)
}

func rootFile(code string) string {
	return "root-" + strings.ToUpper(code) + ".pem"
}

func (c *FileCache) read(name string) ([]byte, error) {
	c.locks.RLock(name)
	defer c.locks.RUnlock(name)

	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (c *FileCache) write(name string, data []byte) error {
	return c.locks.Do(name, func() error {
		if err := os.MkdirAll(c.dir, 0o700); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
		tmp, err := os.CreateTemp(c.dir, name+".*.tmp")
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		defer os.Remove(tmp.Name())

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return fmt.Errorf("write %s: %w", name, err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("close %s: %w", name, err)
		}
		if err := os.Rename(tmp.Name(), filepath.Join(c.dir, name)); err != nil {
			return fmt.Errorf("replace %s: %w", name, err)
		}
		return nil
	})
}
