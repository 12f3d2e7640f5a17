package domain

import "time"

// SessionState represents the lifecycle state of the stored marketplace session.
type SessionState string

const (
	SessionUnset   SessionState = "unset"
	SessionValid   SessionState = "valid"
	SessionExpired SessionState = "expired"
)

// ClientIdentity holds the fingerprint signals presented alongside the
// credential set. Generated once when the session is saved so all automated
// actions on the account stay internally consistent.
type ClientIdentity struct {
	UserAgent string `db:"user_agent" json:"user_agent"`
	Locale    string `db:"locale"     json:"locale"`
	Timezone  string `db:"timezone"   json:"timezone"`
	ViewportW int    `db:"viewport_w" json:"viewport_w"`
	ViewportH int    `db:"viewport_h" json:"viewport_h"`
}

// Session is the stored marketplace credential set. The credential blob is
// encrypted at rest; plaintext never touches this struct.
type Session struct {
	ID              string         `db:"id"               json:"id"`
	Ciphertext      []byte         `db:"ciphertext"       json:"-"`
	Identity        ClientIdentity `json:"identity"`
	State           SessionState   `db:"state"            json:"state"`
	LastValidatedAt *time.Time     `db:"last_validated_at" json:"last_validated_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"       json:"updated_at"`
}
