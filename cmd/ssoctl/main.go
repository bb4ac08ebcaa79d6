package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jrsteele09/go-sso-client/autherrors"
	"github.com/rs/zerolog/log"
)

const (
	exitCodeSuccess      = 0
	exitCodeError        = 1
	exitCodeAuthRequired = 2
	exitCodeCancelled    = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Command failed")
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitCodeSuccess
	case autherrors.IsCancelled(err):
		return exitCodeCancelled
	case autherrors.RequiresReauthentication(err):
		return exitCodeAuthRequired
	}
	return exitCodeError
}
