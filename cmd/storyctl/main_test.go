package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "storyctl.yaml")
	yaml := "store:\n  driver: sqlite\n  sqlitePath: " + filepath.Join(dir, "stories.db") + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestImportBackupExportVerify(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "story"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "story", "fox.md"), []byte("# The Fox\n\nA quick tale."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "stories.json"),
		[]byte(`[{"title":"The Fox","file":"fox.md"},{"title":"Missing","file":"missing.md"}]`), 0o644))

	out, err := run(t, "--config", cfgPath, "import", "--dir", src)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 of 2 stories")
	assert.Contains(t, out, "failed: Missing")
	assert.Contains(t, out, "The Fox")

	backupDir := filepath.Join(dir, "backup")
	out, err = run(t, "--config", cfgPath, "backup", "--out", backupDir)
	require.NoError(t, err)
	assert.Contains(t, out, "written to "+backupDir)
	assert.FileExists(t, filepath.Join(backupDir, "backup-metadata.json"))

	pages := filepath.Join(dir, "public")
	out, err = run(t, "--config", cfgPath, "export", "--out", pages)
	require.NoError(t, err)
	assert.Contains(t, out, "1 pages written")
	assert.FileExists(t, filepath.Join(pages, "fox.md"))

	out, err = run(t, "--config", cfgPath, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "probe read")
	assert.NotContains(t, out, "FAIL")
}

func TestImportClearsReportCache(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("report:summary:7d:10", "{}"))
	require.NoError(t, mr.Set("report:story:1:30d", "{}"))

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "storyctl.yaml")
	yaml := "store:\n  driver: sqlite\n  sqlitePath: " + filepath.Join(dir, "stories.db") +
		"\nredis:\n  enabled: true\n  addr: " + mr.Addr() + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))

	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "story"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "story", "owl.md"), []byte("# The Owl"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "stories.json"), []byte(`[{"title":"The Owl","file":"owl.md"}]`), 0o644))

	_, err := run(t, "--config", cfgPath, "import", "--dir", src)
	require.NoError(t, err)
	assert.False(t, mr.Exists("report:summary:7d:10"))
	assert.False(t, mr.Exists("report:story:1:30d"))
}

func TestMigrateReportsDialect(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())

	out, err := run(t, "--config", cfgPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date (sqlite)")
}

func TestUnknownConfigFails(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "migrate")
	require.Error(t, err)
}
