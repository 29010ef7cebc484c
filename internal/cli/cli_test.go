package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/store"
)

const wiredBundles = `
[[bundle]]
id = 1
name = "consumer"
version = "1.0"

  [[bundle.imports]]
  name = "org.example.api"
  range = "[1.0,2.0)"

[[bundle]]
id = 2
name = "provider"
version = "1.2"

  [[bundle.exports]]
  name = "org.example.api"
  version = "1.5"
`

const danglingImport = `
[[bundle]]
id = 1
name = "consumer"
version = "1.0"

  [[bundle.imports]]
  name = "org.example.api"
`

// captureOutput redirects command output into a buffer for the test.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := out
	out = &buf
	t.Cleanup(func() { out = prev })
	return &buf
}

// isolate points the config and cache directories into the test's temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	captureSpinner(t)
	return dir
}

func writeBundles(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "bundles.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// run executes the root command with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := captureOutput(t)
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	got, err := run(t, args...)
	if err != nil {
		t.Fatalf("bundlewire %s: %v", strings.Join(args, " "), err)
	}
	return got
}

func TestResolveShowRenderDiff(t *testing.T) {
	dir := isolate(t)
	decls := writeBundles(t, dir, wiredBundles)

	got := mustRun(t, "resolve", decls)
	for _, want := range []string{"Resolved", "2 resolved", "consumer_1.0.0", "provider_1.2.0"} {
		if !strings.Contains(got, want) {
			t.Errorf("resolve output does not contain %q:\n%s", want, got)
		}
	}

	got = mustRun(t, "show")
	if !strings.Contains(got, "2 of 2") {
		t.Errorf("show output should report 2 of 2 resolved:\n%s", got)
	}

	got = mustRun(t, "show", "1", "--json")
	var detail struct {
		ID       int64 `json:"id"`
		Resolved bool  `json:"resolved"`
		Required []struct {
			Provider int64 `json:"provider"`
		} `json:"required"`
	}
	if err := json.Unmarshal([]byte(got), &detail); err != nil {
		t.Fatalf("show --json output is not JSON: %v\n%s", err, got)
	}
	if detail.ID != 1 || !detail.Resolved || len(detail.Required) != 1 || detail.Required[0].Provider != 2 {
		t.Errorf("show 1 --json = %+v, want resolved consumer wired to 2", detail)
	}

	got = mustRun(t, "render", "-f", "dot", "-o", "-")
	if !strings.HasPrefix(got, "digraph wiring {") {
		t.Errorf("render -f dot -o - output = %q, want DOT", got)
	}

	got = mustRun(t, "diff", decls)
	if !strings.Contains(got, "No changes") {
		t.Errorf("diff of unchanged declarations should report no changes:\n%s", got)
	}

	got = mustRun(t, "resolve", decls)
	if !strings.Contains(got, "No changes") || !strings.Contains(got, iconRestored) {
		t.Errorf("second resolve should restore the state and report no changes:\n%s", got)
	}
}

func TestResolveJSON(t *testing.T) {
	dir := isolate(t)
	decls := writeBundles(t, dir, wiredBundles)

	got := mustRun(t, "resolve", decls, "--json", "--dry-run")
	var d struct {
		Entries []struct {
			ID    int64    `json:"id"`
			Flags []string `json:"flags"`
		} `json:"entries"`
	}
	if err := json.Unmarshal([]byte(got), &d); err != nil {
		t.Fatalf("resolve --json output is not JSON: %v\n%s", err, got)
	}
	if len(d.Entries) != 2 {
		t.Fatalf("got %d delta entries, want 2", len(d.Entries))
	}

	// A dry run leaves nothing behind.
	got = mustRun(t, "show")
	if !strings.Contains(got, "No state stored yet") {
		t.Errorf("show after a dry run should find no state:\n%s", got)
	}
}

func TestResolveStateDir(t *testing.T) {
	dir := isolate(t)
	decls := writeBundles(t, dir, wiredBundles)
	stateDir := filepath.Join(dir, "state")

	mustRun(t, "--state-dir", stateDir, "--no-cache", "resolve", decls)
	if _, err := os.Stat(filepath.Join(stateDir, store.FileName)); err != nil {
		t.Fatalf("state file not written: %v", err)
	}

	got := mustRun(t, "--state-dir", stateDir, "show", "--resolved")
	if !strings.Contains(got, "provider") {
		t.Errorf("show from the state dir should list the provider:\n%s", got)
	}
}

func TestDiffAgainstBaseDir(t *testing.T) {
	dir := isolate(t)
	decls := writeBundles(t, dir, wiredBundles)
	base := filepath.Join(dir, "base")
	mustRun(t, "--state-dir", base, "resolve", decls)

	writeBundles(t, dir, danglingImport)
	got := mustRun(t, "diff", decls, "--base-dir", base)
	if !strings.Contains(got, "UNRESOLVED") || !strings.Contains(got, "REMOVED") {
		t.Errorf("diff should report the consumer unresolved and the provider removed:\n%s", got)
	}
}

func TestCommandErrors(t *testing.T) {
	dir := isolate(t)
	dangling := writeBundles(t, dir, danglingImport)

	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"strict with unresolved revisions", []string{"resolve", dangling, "--strict", "--dry-run"}, errors.ErrCodeInvalidDeclaration},
		{"unknown render format", []string{"render", "-f", "gif"}, errors.ErrCodeInvalidFormat},
		{"unsafe state name", []string{"--state", "../escape", "resolve", dangling}, errors.ErrCodeInvalidPath},
		{"missing config file", []string{"--config", filepath.Join(dir, "nope.toml"), "show"}, errors.ErrCodeInvalidConfig},
		{"diff without stored state", []string{"diff", dangling}, errors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			if !errors.Is(err, tt.code) {
				t.Errorf("got error %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestShowUnknownRevision(t *testing.T) {
	dir := isolate(t)
	decls := writeBundles(t, dir, wiredBundles)
	mustRun(t, "resolve", decls)

	_, err := run(t, "show", "42")
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("show 42: got %v, want NOT_FOUND", err)
	}
	_, err = run(t, "show", "abc")
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("show abc: got %v, want INVALID_INPUT", err)
	}
}

func TestCompletion(t *testing.T) {
	isolate(t)

	got := mustRun(t, "completion", "bash")
	if !strings.Contains(got, "bundlewire") {
		t.Errorf("bash completion script does not mention bundlewire")
	}
	if _, err := run(t, "completion", "tcsh"); err == nil {
		t.Error("an unknown shell should be rejected")
	}

	var buf bytes.Buffer
	root := New(io.Discard, LogInfo).RootCommand()
	root.SetArgs([]string{"__complete", "render", "--format", ""})
	root.SetOut(&buf)
	root.SetErr(io.Discard)
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"dot", "svg", "pdf", "png"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("--format completions %q do not offer %s", buf.String(), want)
		}
	}
}
