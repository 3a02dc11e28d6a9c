package dscope

import (
	"bytes"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultExtension is the file extension scanned when none is configured.
const DefaultExtension = ".dsc"

// skipDirs are directory names the walk fallback never descends into.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// Discover lists the files under root that end in ext, as sorted,
// slash-separated paths relative to root. Inside a git work tree it uses
// git ls-files so ignored files are left out; otherwise it walks the tree,
// skipping hidden directories, node_modules, vendor and __pycache__.
func Discover(root, ext string) ([]string, error) {
	if ext == "" {
		ext = DefaultExtension
	}
	paths, err := gitListFiles(root, ext)
	if err != nil {
		// Not a git repo or git not available.
		paths, err = walkListFiles(root, ext)
		if err != nil {
			return nil, err
		}
	}
	return normalizePaths(paths), nil
}

// gitListFiles lists tracked and untracked, non-ignored files under root.
// Paths are read NUL-separated so names with non-ASCII bytes or spaces come
// back verbatim rather than C-quoted.
func gitListFiles(root, ext string) ([]string, error) {
	cmd := exec.Command("git", "-c", "core.quotePath=false",
		"ls-files", "-z", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	for _, name := range strings.Split(stdout.String(), "\x00") {
		if name == "" || !strings.HasSuffix(name, ext) {
			continue
		}
		paths = append(paths, name)
	}
	return paths, nil
}

func walkListFiles(root, ext string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

// normalizePaths converts paths to forward slashes, sorts them and drops
// duplicates. Sorted order is the traversal order for the whole pass.
func normalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, filepath.ToSlash(filepath.Clean(p)))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
