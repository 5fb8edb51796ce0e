// Package corpus enumerates source documents and holds the loaded document set.
package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultExtension is the file suffix a corpus entry must carry when none is configured.
const DefaultExtension = ".mdx"

// Entry is one corpus file: its corpus-relative id and raw contents.
type Entry struct {
	Path     string
	Contents string
}

// Provider enumerates corpus entries.
type Provider interface {
	Walk(ctx context.Context) ([]Entry, error)
}

// Option configures a provider.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used to report skipped entries.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FSProvider walks a directory tree on the local filesystem.
type FSProvider struct {
	root      string
	extension string
	logger    *zap.Logger
}

// NewFSProvider returns a provider over root keeping files whose name ends with extension.
// An empty extension selects DefaultExtension.
func NewFSProvider(root, extension string, opts ...Option) *FSProvider {
	if extension == "" {
		extension = DefaultExtension
	}
	o := buildOptions(opts)
	return &FSProvider{root: root, extension: extension, logger: o.logger}
}

// Walk returns every matching regular file under the root, sorted by path.
// A missing or non-directory root is an error; unreadable entries below it are logged and skipped.
func (p *FSProvider) Walk(ctx context.Context) ([]Entry, error) {
	info, err := os.Stat(p.root)
	if err != nil {
		return nil, fmt.Errorf("corpus root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus root %s is not a directory", p.root)
	}

	var entries []Entry
	err = filepath.WalkDir(p.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == p.root {
				return walkErr
			}
			p.logger.Warn("skipping unreadable corpus path", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), p.extension) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			p.logger.Warn("skipping unreadable corpus file", zap.String("path", path), zap.Error(err))
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}
		entries = append(entries, Entry{Path: filepath.ToSlash(rel), Contents: string(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}
