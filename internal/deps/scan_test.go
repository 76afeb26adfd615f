package deps

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseImports(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want []string
	}{
		{name: "plain", src: "import os\nimport numpy\n", want: []string{"os", "numpy"}},
		{name: "dotted and aliased", src: "import google.cloud.speech as speech\n", want: []string{"google"}},
		{name: "comma list", src: "import sys, yaml as y,  requests\n", want: []string{"sys", "yaml", "requests"}},
		{name: "from import", src: "from PIL import Image\nfrom sklearn.linear_model import Ridge\n", want: []string{"PIL", "sklearn"}},
		{name: "relative imports ignored", src: "from . import audio\nfrom .wake import detector\nfrom ..util import x\n", want: nil},
		{name: "indented inside try", src: "try:\n    import webrtcvad\nexcept ImportError:\n    webrtcvad = None\n", want: []string{"webrtcvad"}},
		{name: "comments ignored", src: "# import torch\nx = 1  # import nothing\n", want: nil},
		{
			name: "docstring ignored",
			src:  "\"\"\"Usage:\n\nimport pyaudio\n\"\"\"\nimport pvporcupine\n",
			want: []string{"pvporcupine"},
		},
		{name: "single-line docstring", src: "\"\"\"Wake word loop.\"\"\"\nimport openwakeword\n", want: []string{"openwakeword"}},
		{name: "not a statement", src: "important = True\nfromage = 'brie'\n", want: nil},
		{name: "windows line endings", src: "import numpy\r\nfrom torch import nn\r\n", want: []string{"numpy", "torch"}},
		{name: "no trailing newline", src: "import rich", want: []string{"rich"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, parseImports([]byte(tc.src)))
		})
	}
}

func TestScan(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	root := "/proj"
	files := map[string]string{
		"main.py":                        "import dotenv\nfrom src.assistant import run\n",
		"src/assistant/__init__.py":      "",
		"src/assistant/stt.py":           "import faster_whisper\nimport numpy as np\n",
		"src/assistant/tts.py":           "from piper import PiperVoice\n",
		"src/assistant/notes.txt":        "import ignored\n",
		"src/venv/lib/site.py":           "import should_not_appear\n",
		"src/__pycache__/stt.cpython.py": "import cached\n",
		"tests/test_stt.py":              "import pytest\n",
		"tests/.venv/lib/python/x.py":    "import hidden\n",
		"scripts/cleanup.py":             "import outside_paths\n",
	}
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fsys, filepath.Join(root, name), []byte(body), 0o644))
	}

	got, err := Scan(fsys, root, []string{"src", "main.py", "tests", "missing_dir"})
	require.NoError(t, err)
	assert.Equal(t, []string{"dotenv", "faster_whisper", "numpy", "piper", "pytest", "src"}, got)
}

func TestScan_NoSources(t *testing.T) {
	t.Parallel()

	got, err := Scan(afero.NewMemMapFs(), "/empty", []string{"src"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseImports_LongLine(t *testing.T) {
	t.Parallel()

	src := "import numpy\nWEIGHTS = \"" + strings.Repeat("A", 2<<20) + "\"\nimport torch\n"
	assert.Equal(t, []string{"numpy", "torch"}, parseImports([]byte(src)))
}

func TestScan_LongLineKeepsLaterImports(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	src := "import numpy\nBLOB = '" + strings.Repeat("x", 3<<20) + "'\nimport sounddevice\n"
	require.NoError(t, afero.WriteFile(fsys, "/proj/main.py", []byte(src), 0o644))

	imports, err := Scan(fsys, "/proj", []string{"main.py"})
	require.NoError(t, err)
	assert.Equal(t, []string{"numpy", "sounddevice"}, imports)
}
