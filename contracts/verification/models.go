// Package verification holds the minimal DTO the issuance context reads
// about a finished presentation verification. It carries derived booleans
// only; nothing decrypted from the wallet response crosses this boundary.
package verification

import "time"

// ContractVersion identifies the schema of the shapes below.
const ContractVersion = "v0.1.0"

// Outcome is what issuance needs to know about a verification session.
type Outcome struct {
	SessionID          string          `json:"session_id"`
	Valid              bool            `json:"valid"`
	Mock               bool            `json:"mock"`
	Predicates         map[string]bool `json:"predicates"`
	IssuerJurisdiction string          `json:"issuer_jurisdiction,omitempty"`
	ExpiresAt          time.Time       `json:"expires_at"`
}
