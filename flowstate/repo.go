package flowstate

import (
	"time"

	"github.com/jrsteele09/go-sso-client/oauth2"
)

// AuthFlowState records the grant that produced the current credential:
// which client and token endpoint issued it. A refresh is only attempted
// when this state is present and matches the configured endpoint.
type AuthFlowState struct {
	ID           string           `json:"id"`
	ClientID     string           `json:"client_id"`
	TokenURL     string           `json:"token_url"`
	RedirectURI  string           `json:"redirect_uri"`
	GrantType    oauth2.GrantType `json:"grant_type"`
	SessionState string           `json:"session_state,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Repo persists the single auth flow state of a session.
type Repo interface {
	// Upsert replaces the stored state
	Upsert(state *AuthFlowState) error

	// Get returns autherrors.ErrNotFound when nothing is stored and
	// autherrors.ErrStoreCorrupt when the stored value cannot be decoded
	Get() (*AuthFlowState, error)

	// Delete is idempotent
	Delete() error
}
