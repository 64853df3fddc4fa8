// Package loader turns files on disk into documents for ingestion.
//
// Plain text and markdown files become one document each, CSV files one
// document per row of a chosen column, and PDF files one document of
// extracted text.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// Defaults for CSV extraction.
const (
	DefaultCSVColumn = "Plot"
	DefaultCSVLimit  = 100
	// DefaultMaxFileSize skips files larger than this while walking directories.
	DefaultMaxFileSize = 20 * 1024 * 1024
)

// Document is one unit of ingestion with its provenance.
type Document struct {
	Text string
	// Meta always carries "source"; CSV rows add "row".
	Meta map[string]string
}

// Options configures loading.
type Options struct {
	// CSVColumn names the column whose cells become documents.
	CSVColumn string

	// CSVLimit caps rows read per CSV file (0 = no limit).
	CSVLimit int

	// MaxFileSize skips larger files found by directory walks.
	MaxFileSize int64
}

// DefaultOptions returns sensible defaults
func DefaultOptions() Options {
	return Options{
		CSVColumn:   DefaultCSVColumn,
		CSVLimit:    DefaultCSVLimit,
		MaxFileSize: DefaultMaxFileSize,
	}
}

type format int

const (
	formatUnknown format = iota
	formatText
	formatCSV
	formatPDF
)

func detectFormat(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text", ".md", ".markdown", ".rst":
		return formatText
	case ".csv":
		return formatCSV
	case ".pdf":
		return formatPDF
	}
	return formatUnknown
}

// Supported reports whether path has a loadable extension.
func Supported(path string) bool {
	return detectFormat(path) != formatUnknown
}

// LoadFile reads one file. Unsupported extensions are an error.
func LoadFile(ctx context.Context, path string, opts Options) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, statError(path, err)
	}

	switch detectFormat(path) {
	case formatText:
		return loadText(path)
	case formatCSV:
		return loadCSV(path, opts)
	case formatPDF:
		return loadPDF(path)
	}
	return nil, ragerrors.New(ragerrors.ErrCodeUnsupportedFormat,
		fmt.Sprintf("unsupported file format: %s", filepath.Base(path)), nil).
		WithDetail("path", path).
		WithSuggestion("supported formats: .txt, .md, .csv, .pdf")
}

// LoadPaths loads files and walks directories. Explicit file arguments
// must be supported; inside directories, unsupported, hidden, binary and
// oversized files are skipped. Documents come back in argument order,
// then lexical path order within each directory.
func LoadPaths(ctx context.Context, paths []string, opts Options) ([]Document, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}

	var docs []Document
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, statError(p, err)
		}
		if !info.IsDir() {
			loaded, err := LoadFile(ctx, p, opts)
			if err != nil {
				return nil, err
			}
			docs = append(docs, loaded...)
			continue
		}

		files, err := walk(ctx, p, opts)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			loaded, err := LoadFile(ctx, f, opts)
			if err != nil {
				return nil, err
			}
			docs = append(docs, loaded...)
		}
	}
	return docs, nil
}

// walk lists loadable files under root. WalkDir visits entries in lexical order.
func walk(ctx context.Context, root string, opts Options) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return nil // Skip entries we can't access
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !Supported(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > opts.MaxFileSize {
			return nil
		}
		if detectFormat(path) == formatText && isBinaryFile(path) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func statError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ragerrors.New(ragerrors.ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path), err)
	case errors.Is(err, fs.ErrPermission):
		return ragerrors.New(ragerrors.ErrCodeFilePermission, fmt.Sprintf("permission denied: %s", path), err)
	}
	return ragerrors.IOError(fmt.Sprintf("cannot read %s", path), err)
}

func readError(path string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return ragerrors.New(ragerrors.ErrCodeFilePermission, fmt.Sprintf("permission denied: %s", path), err)
	}
	return ragerrors.IOError(fmt.Sprintf("cannot read %s", path), err)
}

// Split separates documents into the parallel text and metadata slices
// the engine ingests.
func Split(docs []Document) ([]string, []map[string]string) {
	texts := make([]string, len(docs))
	metas := make([]map[string]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
		metas[i] = d.Meta
	}
	return texts, metas
}
