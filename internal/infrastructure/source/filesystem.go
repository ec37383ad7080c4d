package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// filesystemCredentials is the decrypted credential payload for a
// filesystem source. Root must be an absolute directory.
type filesystemCredentials struct {
	Root string `json:"root"`
}

// Filesystem walks a local directory tree. RemoteID is the path relative
// to the configured root, so enumeration is stable across runs.
type Filesystem struct {
	limiter *rate.Limiter
}

func NewFilesystem(fetchRPS float64) *Filesystem {
	if fetchRPS <= 0 {
		fetchRPS = 5
	}
	return &Filesystem{limiter: rate.NewLimiter(rate.Limit(fetchRPS), 1)}
}

func (f *Filesystem) ListFiles(ctx context.Context, credentials []byte, limit int) ([]domain.FileDescriptor, error) {
	root, err := parseFilesystemCredentials(credentials)
	if err != nil {
		return nil, err
	}

	var files []domain.FileDescriptor
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() {
			if strings.HasPrefix(entry.Name(), ".") && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, domain.FileDescriptor{
			RemoteID:   filepath.ToSlash(rel),
			Name:       entry.Name(),
			MimeType:   mime.TypeByExtension(filepath.Ext(entry.Name())),
			SizeBytes:  info.Size(),
			SourceType: domain.SourceTypeFilesystem,
		})
		return nil
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrEnumeration, "walk filesystem source", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RemoteID < files[j].RemoteID })
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func (f *Filesystem) FetchContent(ctx context.Context, credentials []byte, file domain.FileDescriptor) ([]byte, error) {
	root, err := parseFilesystemCredentials(credentials)
	if err != nil {
		return nil, err
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	path := filepath.Join(root, filepath.FromSlash(file.RemoteID))
	if !strings.HasPrefix(path, root+string(filepath.Separator)) && path != root {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch file",
			fmt.Errorf("remote id %q escapes source root", file.RemoteID))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "fetch file", err)
		}
		return nil, fmt.Errorf("read %s: %w", file.RemoteID, err)
	}
	return data, nil
}

func parseFilesystemCredentials(credentials []byte) (string, error) {
	var creds filesystemCredentials
	if err := json.Unmarshal(credentials, &creds); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse filesystem credentials", err)
	}
	if creds.Root == "" || !filepath.IsAbs(creds.Root) {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse filesystem credentials",
			fmt.Errorf("root must be an absolute path, got %q", creds.Root))
	}
	return filepath.Clean(creds.Root), nil
}
