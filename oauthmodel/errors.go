package oauthmodel

import "errors"

var (
	ErrMissingTokenURL      = errors.New("missing token url")
	ErrMissingClientID      = errors.New("missing client id")
	ErrMissingCode          = errors.New("missing authorization code")
	ErrMissingRefreshToken  = errors.New("missing refresh token")
	ErrUnsupportedGrantType = errors.New("unsupported grant type")
)
