package localfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// Storage keeps raw fetched blobs on local disk under
// <base>/<tenant>/<key>. The key is the document's storage key, so a
// reindex can recover the exact bytes that were ingested.
type Storage struct {
	base string
}

func New(base string) (*Storage, error) {
	if base == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "object storage",
			fmt.Errorf("base path is empty"))
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Storage{base: base}, nil
}

func (s *Storage) Save(ctx context.Context, tenantID, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(tenantID, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit blob: %w", err)
	}
	return nil
}

func (s *Storage) Load(ctx context.Context, tenantID, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(tenantID, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "load blob",
				fmt.Errorf("%s/%s", tenantID, key))
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *Storage) Remove(ctx context.Context, tenantID, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(tenantID, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func (s *Storage) resolve(tenantID, key string) (string, error) {
	if tenantID == "" || key == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve blob path",
			fmt.Errorf("tenant and key are required"))
	}
	path := filepath.Join(s.base, tenantID, filepath.FromSlash(key))
	if !strings.HasPrefix(path, filepath.Join(s.base, tenantID)+string(filepath.Separator)) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve blob path",
			fmt.Errorf("key %q escapes tenant prefix", key))
	}
	return path, nil
}
