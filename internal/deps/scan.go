package deps

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

var (
	importRe     = regexp.MustCompile(`^\s*import\s+(.+)$`)
	fromImportRe = regexp.MustCompile(`^\s*from\s+(\S+)\s+import\b`)
	identRe      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	"venv":        true,
	".venv":       true,
	"__pycache__": true,
	".git":        true,
}

// Scan collects the top-level module names imported by the Python sources
// under paths. Each path is a file or a directory relative to root; missing
// paths are skipped. Relative imports are ignored. The result is sorted.
func Scan(fsys afero.Fs, root string, paths []string) ([]string, error) {
	seen := map[string]struct{}{}

	for _, p := range paths {
		full := p
		if !filepath.IsAbs(full) {
			full = filepath.Join(root, p)
		}

		info, err := fsys.Stat(full)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", full, err)
		}

		if !info.IsDir() {
			if filepath.Ext(full) == ".py" {
				if err := scanFile(fsys, full, seen); err != nil {
					return nil, err
				}
			}
			continue
		}

		err = afero.Walk(fsys, full, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				if path != full && skipDirs[info.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".py" {
				return nil
			}
			return scanFile(fsys, path, seen)
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", full, err)
		}
	}

	imports := make([]string, 0, len(seen))
	for name := range seen {
		imports = append(imports, name)
	}
	sort.Strings(imports)
	return imports, nil
}

func scanFile(fsys afero.Fs, path string, seen map[string]struct{}) error {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	for _, name := range parseImports(data) {
		seen[name] = struct{}{}
	}
	return nil
}

// parseImports extracts top-level module names from "import a.b as c, d" and
// "from a.b import c" statements. Statements inside triple-quoted strings
// are skipped. Lines of any length are read.
func parseImports(src []byte) []string {
	var (
		names    []string
		inString string
	)

	for raw := range bytes.Lines(src) {
		line := strings.TrimRight(string(raw), "\r\n")

		if inString != "" {
			if strings.Count(line, inString)%2 == 1 {
				inString = ""
			}
			continue
		}
		if q := openTripleQuote(line); q != "" {
			inString = q
			continue
		}

		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}

		if m := fromImportRe.FindStringSubmatch(line); m != nil {
			if strings.HasPrefix(m[1], ".") {
				continue
			}
			if top := topLevel(m[1]); top != "" {
				names = append(names, top)
			}
			continue
		}

		if m := importRe.FindStringSubmatch(line); m != nil {
			for _, part := range strings.Split(m[1], ",") {
				fields := strings.Fields(part)
				if len(fields) == 0 {
					continue
				}
				if top := topLevel(fields[0]); top != "" {
					names = append(names, top)
				}
			}
		}
	}
	return names
}

// openTripleQuote returns the delimiter when line opens a triple-quoted
// string that it does not also close.
func openTripleQuote(line string) string {
	for _, q := range []string{`"""`, `'''`} {
		if strings.Count(line, q)%2 == 1 {
			return q
		}
	}
	return ""
}

func topLevel(module string) string {
	top, _, _ := strings.Cut(strings.TrimSpace(module), ".")
	if !identRe.MatchString(top) {
		return ""
	}
	return top
}
