// Package deps keeps the assistant's virtual environment limited to the
// distributions its code actually imports.
package deps

import (
	"sort"
	"strings"
)

// importToPackage maps import names to distribution names where they differ.
var importToPackage = map[string]string{
	"cv2":       "opencv-python",
	"PIL":       "pillow",
	"sklearn":   "scikit-learn",
	"yaml":      "PyYAML",
	"dotenv":    "python-dotenv",
	"google":    "google-api-python-client",
	"deepgram":  "deepgram-sdk",
	"webrtcvad": "webrtcvad-wheels",
}

// protected distributions are never reported as unused.
var protected = map[string]bool{
	"pip":           true,
	"setuptools":    true,
	"wheel":         true,
	"pkg-resources": true,
}

// devTools are pinned in the dev requirements file instead of the
// production one.
var devTools = map[string]bool{
	"black":          true,
	"mypy":           true,
	"ruff":           true,
	"pytest":         true,
	"pytest-asyncio": true,
	"pytest-cov":     true,
	"coverage":       true,
	"flake8":         true,
	"pylint":         true,
	"isort":          true,
}

var stdlib = map[string]bool{}

func init() {
	for _, m := range strings.Fields(`
		__future__ abc argparse array ast asyncio atexit base64 binascii bisect
		builtins bz2 calendar cmath collections colorsys concurrent configparser
		contextlib contextvars copy csv ctypes dataclasses datetime decimal
		difflib dis email encodings enum errno fcntl filecmp fnmatch fractions
		ftplib functools gc getopt getpass gettext glob gzip hashlib heapq hmac
		html http imaplib importlib inspect io ipaddress itertools json keyword
		locale logging lzma math mimetypes mmap multiprocessing netrc numbers
		operator os pathlib pickle pkgutil platform plistlib pprint profile
		pstats pty queue random re readline resource sched secrets select
		selectors shelve shlex shutil signal site smtplib socket socketserver
		sqlite3 ssl stat statistics string struct subprocess sys sysconfig
		tarfile tempfile termios textwrap threading time timeit tkinter token
		tokenize tomllib trace traceback tracemalloc tty types typing unicodedata
		unittest urllib uuid venv warnings wave weakref webbrowser winreg
		winsound wsgiref xml xmlrpc zipfile zipimport zlib zoneinfo
	`) {
		stdlib[m] = true
	}
}

// Audit is the result of comparing a project's imports with the packages
// installed in its environment. Distribution names are normalised.
type Audit struct {
	Imports   []string          `json:"imports"`
	Used      []string          `json:"used"`
	Unused    []string          `json:"unused"`
	Dev       []string          `json:"dev"`
	Installed map[string]string `json:"installed"`
}

// Analyze maps imports onto installed distributions. Imports that resolve
// to no installed distribution (stdlib, local modules) are ignored.
func Analyze(imports []string, installed map[string]string) *Audit {
	norm := make(map[string]string, len(installed))
	for name, version := range installed {
		norm[Normalize(name)] = version
	}

	used := map[string]bool{}
	for _, imp := range imports {
		if stdlib[imp] {
			continue
		}

		pkg := imp
		if mapped, ok := importToPackage[imp]; ok {
			pkg = mapped
		}

		if name := Normalize(pkg); hasKey(norm, name) {
			used[name] = true
		} else if name := strings.ToLower(imp); hasKey(norm, name) {
			used[name] = true
		}
	}

	a := &Audit{
		Imports:   append([]string{}, imports...),
		Used:      []string{},
		Unused:    []string{},
		Dev:       []string{},
		Installed: norm,
	}
	for name := range norm {
		switch {
		case used[name]:
			a.Used = append(a.Used, name)
			if devTools[name] {
				a.Dev = append(a.Dev, name)
			}
		case !protected[name]:
			a.Unused = append(a.Unused, name)
		}
	}
	sort.Strings(a.Imports)
	sort.Strings(a.Used)
	sort.Strings(a.Unused)
	sort.Strings(a.Dev)
	return a
}

// Production returns the used distributions that are not dev tools.
func (a *Audit) Production() []string {
	var out []string
	for _, name := range a.Used {
		if !devTools[name] {
			out = append(out, name)
		}
	}
	return out
}

// Normalize lower-cases a distribution name and replaces underscores with
// dashes.
func Normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "-")
}

func hasKey(m map[string]string, k string) bool {
	_, ok := m[k]
	return ok
}
