package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/blospray-dev/blospray/internal/config"
)

// ErrInvalidKey is returned for keys that are empty or escape the prefix.
var ErrInvalidKey = errors.New("archive: invalid key")

// Store is the interface for archive backends.
type Store interface {
	// Put stores size bytes read from r under key and returns where the
	// object ended up (a path or URL).
	Put(ctx context.Context, key string, r io.Reader, size int64) (location string, err error)
}

// FinalKey returns the key of the n-th final render of a session.
func FinalKey(sessionID string, n int) string {
	return fmt.Sprintf("%s/final-%d.exr", sessionID, n)
}

// cleanKey validates a slash separated key.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	c := path.Clean(key)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return c, nil
}

// New builds the store described by cfg. It returns nil when archiving is
// disabled.
func New(cfg config.ArchiveConfig) (Store, error) {
	switch cfg.Kind {
	case "":
		return nil, nil
	case "dir":
		return NewDirStore(cfg.Dir)
	case "s3":
		return NewS3Store(NewS3Client(cfg.Region, cfg.Endpoint), cfg.Bucket, cfg.Prefix), nil
	}
	return nil, fmt.Errorf("archive: unknown kind %q", cfg.Kind)
}
