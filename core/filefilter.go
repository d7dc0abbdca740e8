package core

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"secscan/config"
	"secscan/logger"
)

// skipDirs are directory names never descended into during discovery.
var skipDirs = map[string]bool{
	".git":          true,
	".hg":           true,
	".svn":          true,
	"node_modules":  true,
	"vendor":        true,
	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
	".tox":          true,
	"dist":          true,
	"build":         true,
	".idea":         true,
	".vscode":       true,
	".mypy_cache":   true,
	".pytest_cache": true,
}

// FileFilter decides which files in a directory tree are eligible for
// scanning: known language, under the size cap, not binary, not matching
// an exclude glob.
type FileFilter struct {
	maxFileSize  int64
	excludeGlobs []string
}

// NewFileFilter builds a FileFilter from injected configuration.
func NewFileFilter(cfg *config.Config) *FileFilter {
	return &FileFilter{
		maxFileSize:  cfg.Scanner.MaxFileSize,
		excludeGlobs: cfg.Scanner.ExcludeGlobs,
	}
}

// Discover enumerates candidate files under dir (recursively or not) and
// returns the eligible subset. A nonexistent dir is an error; unreadable
// entries inside the tree are skipped with a log line.
func (f *FileFilter) Discover(dir string, recursive bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var candidates []string
	if recursive {
		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Warn("discover: skipping %s: %v", path, err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != dir && skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			candidates = append(candidates, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", dir, err)
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				candidates = append(candidates, filepath.Join(dir, e.Name()))
			}
		}
	}

	return f.Filter(candidates), nil
}

// Filter drops ineligible paths from the candidate list.
func (f *FileFilter) Filter(paths []string) []string {
	var eligible []string
	for _, p := range paths {
		if f.eligible(p) {
			eligible = append(eligible, p)
		}
	}
	return eligible
}

func (f *FileFilter) eligible(path string) bool {
	if !ScannableLanguage(DetectLanguage(path)) {
		return false
	}

	base := filepath.Base(path)
	for _, glob := range f.excludeGlobs {
		if ok, _ := filepath.Match(glob, base); ok {
			return false
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Debug("filter: cannot stat %s: %v", path, err)
		return false
	}
	if !info.Mode().IsRegular() {
		return false
	}
	if f.maxFileSize > 0 && info.Size() > f.maxFileSize {
		logger.Debug("filter: %s exceeds size cap (%d bytes)", path, info.Size())
		return false
	}
	if info.Size() == 0 {
		return false
	}

	return !looksBinary(path)
}

// looksBinary sniffs the first 512 bytes for NUL, the cheap and standard
// binary heuristic.
func looksBinary(path string) bool {
	fh, err := os.Open(path)
	if err != nil {
		return true
	}
	defer fh.Close()

	buf := make([]byte, 512)
	n, err := fh.Read(buf)
	if err != nil && n == 0 {
		return true
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
