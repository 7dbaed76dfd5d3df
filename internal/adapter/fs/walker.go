package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Walker resolves upload arguments into files using include/exclude globs.
type Walker struct {
	includes []string
	excludes []string
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

// Expand resolves each argument: directories are walked with the include and
// exclude patterns, files are taken as given, anything else is treated as a
// doublestar glob. Results are de-duplicated and keep argument order.
func (w *Walker) Expand(args []string) ([]FileInfo, error) {
	var files []FileInfo
	seen := make(map[string]bool)
	add := func(found []FileInfo) {
		for _, f := range found {
			if !seen[f.Path] {
				seen[f.Path] = true
				files = append(files, f)
			}
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		switch {
		case err == nil && info.IsDir():
			found, err := w.Walk(arg)
			if err != nil {
				return nil, err
			}
			add(found)
		case err == nil:
			abs, err := filepath.Abs(arg)
			if err != nil {
				return nil, err
			}
			add([]FileInfo{fileInfo(abs, info)})
		default:
			found, err := w.glob(arg)
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				return nil, fmt.Errorf("no files match %q", arg)
			}
			add(found)
		}
	}
	return files, nil
}

func (w *Walker) glob(pattern string) ([]FileInfo, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)

	var files []FileInfo
	for _, m := range matches {
		if w.shouldExclude(strings.TrimPrefix(filepath.ToSlash(m), "/")) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, err
		}
		files = append(files, fileInfo(abs, info))
	}
	return files, nil
}

func (w *Walker) Walk(root string) ([]FileInfo, error) {
	var files []FileInfo

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if info.IsDir() {
			if relPath != "." && w.shouldExclude(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if w.shouldInclude(relPath) && !w.shouldExclude(relPath) {
			files = append(files, fileInfo(path, info))
		}

		return nil
	})

	return files, err
}

func fileInfo(path string, info os.FileInfo) FileInfo {
	return FileInfo{
		Path:    path,
		ModTime: info.ModTime().Unix(),
		Size:    info.Size(),
	}
}

func (w *Walker) shouldInclude(path string) bool {
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}
