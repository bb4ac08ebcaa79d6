package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-sso-client/autherrors"
	"github.com/jrsteele09/go-sso-client/session"
	"github.com/rs/zerolog/log"
)

// browserLogin opens the realm login page and reads back what the user pastes:
// either the full redirect URL or just the authorization code. An empty line,
// end of input or ctx cancellation abandon the login.
func browserLogin(in io.Reader, out io.Writer, openURL func(string) error) session.InteractiveLogin {
	return func(ctx context.Context, authorizationURL, loginQuery string) (string, error) {
		loginURL := authorizationURL + "?" + loginQuery
		fmt.Fprintf(out, "Sign in at:\n\n  %s\n\n", loginURL)
		if err := openURL(loginURL); err != nil {
			log.Warn().Err(err).Msg("Unable to open a browser")
		}
		fmt.Fprint(out, "Paste the redirect URL or authorization code: ")

		type readResult struct {
			line string
			err  error
		}
		lines := make(chan readResult, 1)
		go func() {
			line, err := bufio.NewReader(in).ReadString('\n')
			lines <- readResult{line: line, err: err}
		}()

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", autherrors.ErrLoginCancelled, ctx.Err())
		case res := <-lines:
			if res.err != nil && !errors.Is(res.err, io.EOF) {
				return "", fmt.Errorf("reading authorization code: %w", res.err)
			}
			return parseCode(res.line)
		}
	}
}

// parseCode extracts the authorization code from a pasted redirect URL or
// returns the input itself when it is a bare code.
func parseCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", autherrors.ErrLoginCancelled
	}
	if !strings.Contains(input, "?") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parsing redirect url: %w", err)
	}
	query := u.Query()
	if errCode := query.Get("error"); errCode != "" {
		if errCode == "access_denied" {
			return "", autherrors.ErrLoginCancelled
		}
		return "", fmt.Errorf("authorization failed: %s - %s", errCode, query.Get("error_description"))
	}
	code := query.Get("code")
	if code == "" {
		return "", errors.New("redirect url has no code parameter")
	}
	return code, nil
}
