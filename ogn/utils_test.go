package ogn

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileExtension(t *testing.T) {
	tests := map[string]string{
		"model.binvox":       "binvox",
		"/tmp/out/shape.OT":  "ot",
		"noext":              "",
		"dir.v1/archive.ot":  "ot",
		"compressed.ot.zstd": "zstd",
	}
	for in, want := range tests {
		if got := FileExtension(in); got != want {
			t.Errorf("FileExtension(%q) = %q, expected %q", in, got, want)
		}
	}
}

func TestLog2(t *testing.T) {
	for level := 0; level <= 10; level++ {
		got, ok := Log2(1 << level)
		if !ok || got != level {
			t.Errorf("Log2(%d) = %d, %t", 1<<level, got, ok)
		}
	}
	for _, n := range []int{0, -4, 3, 12, 1000} {
		if _, ok := Log2(n); ok {
			t.Errorf("Log2(%d) should not be a power of two", n)
		}
	}
	if l := CeilLog2(33); l != 6 {
		t.Errorf("CeilLog2(33) = %d, expected 6", l)
	}
	if l := CeilLog2(32); l != 5 {
		t.Errorf("CeilLog2(32) = %d, expected 5", l)
	}
	if l := CeilLog2(1); l != 0 {
		t.Errorf("CeilLog2(1) = %d, expected 0", l)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "ogn.toml")
	contents := `
[logging]
logfile = "logs/ogn.log"
max_log_size = 100
max_log_age = 7

[store]
path = "db"
compression = "zstd"

[cache]
size_mb = 64

[dataset]
source = "train.txt"
preload = true

[convert]
min_level = 2
workers = 4
`
	if err := os.WriteFile(fname, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(fname)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Store.Path != filepath.Join(dir, "db") {
		t.Errorf("expected absolute store path, got %q", c.Store.Path)
	}
	if c.Store.Engine != DefaultEngine {
		t.Errorf("expected default engine %q, got %q", DefaultEngine, c.Store.Engine)
	}
	if c.Logging.Logfile != filepath.Join(dir, "logs", "ogn.log") || c.Logging.MaxSize != 100 {
		t.Errorf("bad logging config: %+v", c.Logging)
	}
	if c.Dataset.Source != filepath.Join(dir, "train.txt") || !c.Dataset.Preload {
		t.Errorf("bad dataset config: %+v", c.Dataset)
	}
	if c.Dataset.BatchSize != DefaultBatchSize {
		t.Errorf("expected default batch size, got %d", c.Dataset.BatchSize)
	}
	if c.Cache.Bytes() != 64<<20 {
		t.Errorf("expected 64 MB cache, got %d bytes", c.Cache.Bytes())
	}
	if c.Convert.MinLevel != 2 || c.Convert.Workers != 4 {
		t.Errorf("bad convert config: %+v", c.Convert)
	}
}

func TestLoadConfigBadCompression(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(fname, []byte("[store]\ncompression = \"lzma\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(fname); err == nil {
		t.Errorf("expected error for unknown compression")
	}
	if _, err := LoadConfig(""); err == nil {
		t.Errorf("expected error for empty config filename")
	}
}
