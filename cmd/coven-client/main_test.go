// ABOUTME: End-to-end tests running coven-client commands against the fake gateway
// ABOUTME: Each run builds a fresh app from the config file, like separate invocations

package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-client/internal/auth"
	"github.com/2389/coven-client/internal/config"
	"github.com/2389/coven-client/internal/gatewaytest"
)

var testPair = auth.TokenPair{AccessToken: "access-0", RefreshToken: "refresh-0"}

func setupGateway(t *testing.T) *gatewaytest.Gateway {
	t.Helper()

	gw := gatewaytest.New(testPair)
	t.Cleanup(gw.Close)

	dir := t.TempDir()
	cfg := `
api:
  base_url: "` + gw.URL() + `"
credentials:
  backend: "file"
  path: "` + filepath.Join(dir, "credentials") + `"
  secret: "0123456789abcdef0123456789abcdef"
netlog:
  path: "` + filepath.Join(dir, "network-log.json") + `"
session:
  bootstrap_cooldown: "0s"
logging:
  level: "error"
`
	path := filepath.Join(dir, "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
	t.Setenv(config.EnvConfigPath, path)
	return gw
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func login(t *testing.T) {
	t.Helper()
	_, err := runCmd(t, "login", "--access", testPair.AccessToken, "--refresh", testPair.RefreshToken)
	require.NoError(t, err)
}

func TestRun_Usage(t *testing.T) {
	_, err := runCmd(t)
	assert.ErrorIs(t, err, errUsage)

	_, err = runCmd(t, "frobnicate")
	assert.ErrorIs(t, err, errUsage)

	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestRun_StatusSignedOut(t *testing.T) {
	setupGateway(t)

	out, err := runCmd(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "signed_out")
	assert.Contains(t, out, "Network log:  0 entries")
}

func TestRun_LoginPersistsAcrossInvocations(t *testing.T) {
	gw := setupGateway(t)

	out, err := runCmd(t, "login", "--access", testPair.AccessToken, "--refresh", testPair.RefreshToken)
	require.NoError(t, err)
	assert.Contains(t, out, "Ada")
	assert.Contains(t, out, "Entitlements: export, unlimited_recordings")
	assert.Contains(t, out, "Features:     transcripts")

	out, err = runCmd(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated")
	assert.NotContains(t, out, testPair.RefreshToken, "tokens are masked")

	out, err = runCmd(t, "me")
	require.NoError(t, err)
	assert.Contains(t, out, "ada@example.org")
	assert.Equal(t, 2, gw.Hits("GET /v1/me"))
}

func TestRun_LoginRequiresBothTokens(t *testing.T) {
	setupGateway(t)

	_, err := runCmd(t, "login", "--access", "only")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--access and --refresh")
}

func TestRun_MeWithoutLoginFailsFast(t *testing.T) {
	gw := setupGateway(t)

	_, err := runCmd(t, "me")
	require.Error(t, err)
	assert.Equal(t, 0, gw.TotalHits())
}

func TestRun_UpdateProfile(t *testing.T) {
	setupGateway(t)
	login(t)

	out, err := runCmd(t, "me", "--name", "Ada L.")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada L.")
}

func TestRun_PromptsAndHistory(t *testing.T) {
	setupGateway(t)
	login(t)

	out, err := runCmd(t, "prompts", "--category", "daily")
	require.NoError(t, err)
	assert.Contains(t, out, "What surprised you today?")
	assert.NotContains(t, out, "Tell a story")

	out, err = runCmd(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "First take")
	assert.Contains(t, out, "42s")

	out, err = runCmd(t, "history", "r1")
	require.NoError(t, err)
	assert.Contains(t, out, "Title:     First take")

	out, err = runCmd(t, "history", "--delete", "r1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted r1.")

	out, err = runCmd(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "(no recordings)")
}

func TestRun_Upload(t *testing.T) {
	gw := setupGateway(t)
	login(t)

	out, err := runCmd(t, "upload", "--filename", "take.m4a", "--size", "2048")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Equal(t, 1, gw.Hits("POST /v1/uploads"))
}

func TestRun_LogoutThenStatus(t *testing.T) {
	setupGateway(t)
	login(t)

	out, err := runCmd(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")

	out, err = runCmd(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "signed_out")
}

func TestRun_RevokedRefreshSignsOut(t *testing.T) {
	gw := setupGateway(t)
	login(t)
	gw.RevokeAll()

	_, err := runCmd(t, "refresh")
	require.Error(t, err)

	out, err := runCmd(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "signed_out")
}

func TestRun_LogsExport(t *testing.T) {
	setupGateway(t)
	login(t)

	out, err := runCmd(t, "logs")
	require.NoError(t, err)
	assert.Contains(t, out, "## GET /v1/me")
	assert.NotContains(t, out, testPair.AccessToken)

	exportPath := filepath.Join(t.TempDir(), "log.html")
	_, err = runCmd(t, "logs", "--html", "--out", exportPath)
	require.NoError(t, err)
	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<!DOCTYPE html>"))

	_, err = runCmd(t, "logs", "--clear")
	require.NoError(t, err)
	out, err = runCmd(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Network log:  0 entries")
}

func TestSetupLogger_ColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn"}, &buf)

	logger.Info("hidden")
	logger.With("component", "client").WithGroup("call").Warn("visible", "status", 401)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "component=")
	assert.Contains(t, out, "call.status=")
	assert.Contains(t, out, "401")
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.Debug("traced", "path", "/v1/me")
	assert.Contains(t, buf.String(), `"msg":"traced"`)
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("loud"))
}
