package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/jrsteele09/go-sso-client/autherrors"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SSO_BASE_URL", "https://sso.example.com")
	t.Setenv("SSO_REALM", "demo")
	t.Setenv("SSO_CLIENT_ID", "secure-image")
	t.Setenv("SSO_REDIRECT_URI", "app://callback")
	t.Setenv("SSO_STORE_DIR", dir)
	t.Setenv("SSO_STORE_KEY", "")
	t.Setenv("SSO_LOG_LEVEL", "disabled")

	prev := openBrowser
	openBrowser = func(string) error { return nil }
	t.Cleanup(func() { openBrowser = prev })
	return dir
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCmd(strings.NewReader(""), out)
	cmd.SetArgs(append(args, "--env-dir", t.TempDir()))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatus_Unauthenticated(t *testing.T) {
	setupEnv(t)
	out, err := runCmd(t, "status")
	require.NoError(t, err)
	require.Contains(t, out, "State:   unauthenticated")
	require.Contains(t, out, "https://sso.example.com/auth/realms/demo")
}

func TestToken_NoLogin(t *testing.T) {
	setupEnv(t)
	_, err := runCmd(t, "token", "--no-login")
	require.ErrorIs(t, err, autherrors.ErrCredentialsUnavailable)
	require.Equal(t, exitCodeAuthRequired, exitCode(err))
}

func TestRefresh_NoCredential(t *testing.T) {
	setupEnv(t)
	_, err := runCmd(t, "refresh")
	require.ErrorIs(t, err, autherrors.ErrCredentialsUnavailable)
}

func TestLogin_EmptyInputCancels(t *testing.T) {
	setupEnv(t)
	_, err := runCmd(t, "login")
	require.ErrorIs(t, err, autherrors.ErrLoginCancelled)
}

func TestLogout_Idempotent(t *testing.T) {
	setupEnv(t)
	for i := 0; i < 2; i++ {
		out, err := runCmd(t, "logout")
		require.NoError(t, err)
		require.Contains(t, out, "Logged out")
	}
}

func TestInvalidConfiguration(t *testing.T) {
	setupEnv(t)
	t.Setenv("SSO_REALM", "")
	_, err := runCmd(t, "status")
	require.Error(t, err)

	setupEnv(t)
	t.Setenv("SSO_STORE_KEY", "not-hex")
	_, err = runCmd(t, "status")
	require.Error(t, err)
}
