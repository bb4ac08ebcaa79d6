package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/jrsteele09/go-sso-client/autherrors"
	"github.com/stretchr/testify/require"
)

func TestParseCode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "bare code", input: "  abc.def  \n", want: "abc.def"},
		{name: "redirect url", input: "app://callback?state=x&session_state=s&code=abc", want: "abc"},
		{name: "relative query", input: "?code=xyz", want: "xyz"},
		{name: "empty", input: "\n", wantErr: autherrors.ErrLoginCancelled},
		{name: "denied", input: "app://callback?error=access_denied", wantErr: autherrors.ErrLoginCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCode(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := parseCode("app://callback?error=server_error&error_description=boom")
	require.ErrorContains(t, err, "boom")

	_, err = parseCode("app://callback?state=x")
	require.Error(t, err)
}

func TestBrowserLogin(t *testing.T) {
	var opened string
	out := &bytes.Buffer{}
	login := browserLogin(strings.NewReader("app://callback?code=abc\n"), out, func(u string) error {
		opened = u
		return errors.New("no browser")
	})

	code, err := login(context.Background(), "https://sso.example.com/auth", "response_type=code")
	require.NoError(t, err)
	require.Equal(t, "abc", code)
	require.Equal(t, "https://sso.example.com/auth?response_type=code", opened)
	require.Contains(t, out.String(), opened)
}

func TestBrowserLogin_Cancelled(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	login := browserLogin(reader, io.Discard, func(string) error { return nil })

	_, err := login(ctx, "https://sso.example.com/auth", "")
	require.ErrorIs(t, err, autherrors.ErrLoginCancelled)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExitCode(t *testing.T) {
	require.Equal(t, exitCodeSuccess, exitCode(nil))
	require.Equal(t, exitCodeCancelled, exitCode(autherrors.ErrLoginCancelled))
	require.Equal(t, exitCodeAuthRequired, exitCode(autherrors.ErrCredentialsUnavailable))
	require.Equal(t, exitCodeAuthRequired, exitCode(autherrors.ErrExpired))
	require.Equal(t, exitCodeError, exitCode(autherrors.ErrRefreshFailed))
}
