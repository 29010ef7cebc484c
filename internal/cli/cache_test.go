package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCachePath(t *testing.T) {
	dir := isolate(t)

	got := mustRun(t, "cache", "path")
	want := filepath.Join(dir, "cache", "bundlewire")
	if strings.TrimSpace(strings.SplitN(got, "\n", 2)[0]) != want {
		t.Errorf("cache path = %q, want %q", got, want)
	}
}

func TestCachePathBadgerBackend(t *testing.T) {
	dir := isolate(t)
	cfg := filepath.Join(dir, "config.toml")
	badger := filepath.Join(dir, "kv")
	content := "[cache]\nbackend = \"badger\"\n\n[cache.badger]\npath = \"" + filepath.ToSlash(badger) + "\"\n"
	if err := os.WriteFile(cfg, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got := mustRun(t, "--config", cfg, "cache", "path")
	if !strings.Contains(got, filepath.ToSlash(badger)) {
		t.Errorf("cache path = %q, want the badger directory", got)
	}
	if !strings.Contains(got, "Config: "+cfg) {
		t.Errorf("cache path should name the config file:\n%s", got)
	}
}

func TestCacheClearRemovesState(t *testing.T) {
	dir := isolate(t)
	decls := writeBundles(t, dir, wiredBundles)
	mustRun(t, "resolve", decls)

	got := mustRun(t, "cache", "clear")
	if !strings.Contains(got, "Cleared the file cache") {
		t.Errorf("cache clear output:\n%s", got)
	}

	got = mustRun(t, "show")
	if !strings.Contains(got, "No state stored yet") {
		t.Errorf("show after cache clear should find no state:\n%s", got)
	}
}

func TestCacheClearDisabled(t *testing.T) {
	isolate(t)

	got := mustRun(t, "--no-cache", "cache", "clear")
	if !strings.Contains(got, "nothing to clear") {
		t.Errorf("clearing with --no-cache should say so:\n%s", got)
	}
}
