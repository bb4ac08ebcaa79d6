package credential

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-sso-client/autherrors"
)

// Keys of the persisted mapping. These names are the compatibility surface
// with credentials written by earlier releases.
const (
	KeyAccessToken      = "access_token"
	KeyTokenType        = "token_type"
	KeyRefreshToken     = "refresh_token"
	KeySessionState     = "session_state"
	KeyRefreshExpiresIn = "refresh_expires_in"
	KeyRefreshExpiresAt = "refreshExpiresAt"
	KeyNotBeforePolicy  = "not-before-policy"
	KeyExpiresIn        = "expires_in"
	KeyExpiresAt        = "expiresAt"
)

// TimeLayout is yyyy-MM-dd'T'HH:mm:ss.SSSZZ. Instants are always written in
// UTC so lexical and temporal order agree.
const TimeLayout = "2006-01-02T15:04:05.000-0700"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Fields returns the flat persisted mapping. Every key is always present.
func (c *Credential) Fields() map[string]any {
	return map[string]any{
		KeyTokenType:        c.tokenType,
		KeyRefreshToken:     c.refreshToken,
		KeyAccessToken:      c.accessToken,
		KeySessionState:     c.sessionState,
		KeyRefreshExpiresIn: c.refreshExpiresIn,
		KeyNotBeforePolicy:  c.notBeforePolicy,
		KeyExpiresIn:        c.expiresIn,
		KeyRefreshExpiresAt: FormatTime(c.refreshExpiresAt),
		KeyExpiresAt:        FormatTime(c.accessExpiresAt),
	}
}

// FromFields rebuilds a Credential from its persisted mapping. Absolute
// expiry instants are used as written; only when both are missing (blobs
// written before they were recorded) are they derived from now plus the
// stored lifetimes.
func FromFields(fields map[string]any, now time.Time) (*Credential, error) {
	c := &Credential{}
	var err error

	str := func(key string, dst *string) {
		if err != nil {
			return
		}
		v, ok := fields[key]
		if !ok {
			err = fmt.Errorf("missing %s: %w", key, autherrors.ErrStoreCorrupt)
			return
		}
		s, ok := v.(string)
		if !ok {
			err = fmt.Errorf("%s is %T, want string: %w", key, v, autherrors.ErrStoreCorrupt)
			return
		}
		*dst = s
	}
	num := func(key string, dst *int64) {
		if err != nil {
			return
		}
		v, ok := fields[key]
		if !ok {
			err = fmt.Errorf("missing %s: %w", key, autherrors.ErrStoreCorrupt)
			return
		}
		n, convErr := toInt64(v)
		if convErr != nil {
			err = fmt.Errorf("%s: %v: %w", key, convErr, autherrors.ErrStoreCorrupt)
			return
		}
		*dst = n
	}

	str(KeyTokenType, &c.tokenType)
	str(KeyRefreshToken, &c.refreshToken)
	str(KeyAccessToken, &c.accessToken)
	str(KeySessionState, &c.sessionState)
	num(KeyRefreshExpiresIn, &c.refreshExpiresIn)
	num(KeyNotBeforePolicy, &c.notBeforePolicy)
	num(KeyExpiresIn, &c.expiresIn)
	if err != nil {
		return nil, fmt.Errorf("[credential.FromFields] %w", err)
	}
	if missing := missingFields(
		[2]string{KeyAccessToken, c.accessToken},
		[2]string{KeyTokenType, c.tokenType},
		[2]string{KeyRefreshToken, c.refreshToken},
	); len(missing) > 0 {
		return nil, fmt.Errorf("[credential.FromFields] empty %s: %w", strings.Join(missing, ", "), autherrors.ErrStoreCorrupt)
	}

	if !validLifetime(c.expiresIn) || !validLifetime(c.refreshExpiresIn) {
		return nil, fmt.Errorf("[credential.FromFields] lifetime out of range: %w", autherrors.ErrStoreCorrupt)
	}

	_, hasAccessAt := fields[KeyExpiresAt]
	_, hasRefreshAt := fields[KeyRefreshExpiresAt]
	if !hasAccessAt && !hasRefreshAt {
		issued := normalise(now)
		c.accessExpiresAt = issued.Add(time.Duration(c.expiresIn) * time.Second)
		c.refreshExpiresAt = issued.Add(time.Duration(c.refreshExpiresIn) * time.Second)
		return c, nil
	}

	var accessAt, refreshAt string
	str(KeyExpiresAt, &accessAt)
	str(KeyRefreshExpiresAt, &refreshAt)
	if err != nil {
		return nil, fmt.Errorf("[credential.FromFields] %w", err)
	}
	if c.accessExpiresAt, err = ParseTime(accessAt); err != nil {
		return nil, fmt.Errorf("[credential.FromFields] %s: %v: %w", KeyExpiresAt, err, autherrors.ErrStoreCorrupt)
	}
	if c.refreshExpiresAt, err = ParseTime(refreshAt); err != nil {
		return nil, fmt.Errorf("[credential.FromFields] %s: %v: %w", KeyRefreshExpiresAt, err, autherrors.ErrStoreCorrupt)
	}
	return c, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}

// Marshal encodes the credential as base64 of its JSON field mapping.
func (c *Credential) Marshal() ([]byte, error) {
	raw, err := json.Marshal(c.Fields())
	if err != nil {
		return nil, fmt.Errorf("[Credential.Marshal] %w", err)
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// Unmarshal decodes a blob written by Marshal. Any failure is reported as
// autherrors.ErrStoreCorrupt.
func Unmarshal(blob []byte, now time.Time) (*Credential, error) {
	raw, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(blob)))
	if err != nil {
		return nil, fmt.Errorf("[credential.Unmarshal] base64: %v: %w", err, autherrors.ErrStoreCorrupt)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("[credential.Unmarshal] json: %v: %w", err, autherrors.ErrStoreCorrupt)
	}
	return FromFields(fields, now)
}
