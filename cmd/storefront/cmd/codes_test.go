package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortasa/storefront/storage"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCodesLifecycle(t *testing.T) {
	dir := t.TempDir()
	common := []string{"--env-file", filepath.Join(dir, "none.env"), "--backend", "bbolt", "--data-dir", dir, "--log-level", "error"}
	with := func(args ...string) []string { return append(args, common...) }

	out, err := run(t, with("codes", "bootstrap")...)
	require.NoError(t, err)
	assert.Contains(t, out, "master access code created")

	out, err = run(t, with("codes", "bootstrap")...)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = run(t, with("codes", "add", "shop-42", "Cashier")...)
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.GreaterOrEqual(t, len(fields), 4)
	id := fields[3]

	_, err = run(t, with("codes", "add", "shop-42", "Again")...)
	assert.Error(t, err, "duplicate code")

	out, err = run(t, with("codes", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Cashier")
	assert.Contains(t, out, "المدير الرئيسي")
	assert.NotContains(t, out, "shop-42", "code values are not printed")

	_, err = run(t, with("codes", "delete", id)...)
	require.NoError(t, err)

	out, err = run(t, with("codes", "list")...)
	require.NoError(t, err)
	assert.NotContains(t, out, "Cashier")
}

func TestMigrateRequiresPostgres(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "migrate", "up", "--env-file", filepath.Join(dir, "none.env"), "--backend", "memory")
	assert.ErrorContains(t, err, "postgres backend")

	_, err = run(t, "migrate", "sideways", "--backend", "memory")
	assert.Error(t, err)
}

func TestPrintCodes(t *testing.T) {
	var buf bytes.Buffer
	printCodes(&buf, []storage.AccessCode{{
		ID:        "01J0",
		Code:      "secret",
		Label:     "Front desk",
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}})
	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Front desk")
	assert.Contains(t, out, "2025-03-01T12:00:00Z")
	assert.NotContains(t, out, "secret")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}
