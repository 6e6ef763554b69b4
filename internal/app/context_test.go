package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseline/internal/domain"
	"caseline/internal/engine"
)

func TestOpenUsesDefaultsAndDotEnv(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, ".env"), []byte("CASELINE_JWT_SECRET=from-dotenv\nCASELINE_LOG_LEVEL=warn\n"), 0o600))
	// godotenv never overrides variables that are already set.
	for _, k := range []string{"CASELINE_JWT_SECRET", "CASELINE_LOG_LEVEL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
		t.Cleanup(func() { os.Unsetenv(k) })
	}

	rt, err := Open(Options{Workspace: ws})
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, "from-dotenv", rt.Config.Server.JWTSecret)
	assert.Equal(t, "warn", rt.Config.Log.Level)
	assert.FileExists(t, filepath.Join(ws, ".caseline", "caseline.db"))

	admin := domain.Actor{ID: "u-admin", Role: domain.RoleAdmin}
	c, err := rt.Engine.CreateCase(context.Background(), admin, engine.CaseCreateOptions{Title: "smoke"})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Version)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	ws := t.TempDir()
	path := filepath.Join(ws, "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  format: xml\n"), 0o644))
	_, err := Open(Options{Workspace: ws, ConfigPath: path})
	assert.Error(t, err)
}
