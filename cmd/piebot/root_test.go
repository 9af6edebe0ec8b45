package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "migrate", "settle", "report", "clear", "token"} {
		assert.Contains(t, names, want)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := runCLI(t)
	require.NoError(t, err)
	assert.Contains(t, out, "piebot")
	assert.Contains(t, out, "settle")
}

func TestVersionFlag(t *testing.T) {
	out, err := runCLI(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "piebot dev\n", out)
}

func TestSettleOnEmptyMemoryStore(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := runCLI(t, "settle", "--database-url", "memory://")
	require.NoError(t, err)
	assert.Equal(t, "No pies have been settled yet.\n", out)
}

func TestSQLiteAdminCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	url := "sqlite://" + filepath.Join(t.TempDir(), "pie.db")

	out, err := runCLI(t, "migrate", "--database-url", url)
	require.NoError(t, err)
	assert.Equal(t, "Migrated sqlite store\n", out)

	out, err = runCLI(t, "report", "--database-url", url)
	require.NoError(t, err)
	assert.Equal(t, "No pies have been settled yet.\n", out)

	_, err = runCLI(t, "clear", "--database-url", url)
	require.Error(t, err)

	out, err = runCLI(t, "clear", "--yes", "--database-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")
}

func TestUnsupportedStoreScheme(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := runCLI(t, "report", "--database-url", "redis://localhost")
	require.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "cli-secret")

	out, err := runCLI(t, "token", "--user", "alice")
	require.NoError(t, err)

	tok := strings.TrimSpace(out)
	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("cli-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", claims["username"])

	_, err = runCLI(t, "token")
	assert.Error(t, err)
}
