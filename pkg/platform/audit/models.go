package audit

import "time"

// Event records a security-relevant decision. It never carries credential
// attribute values, only identifiers, outcomes and reasons.
type Event struct {
	Timestamp time.Time
	Action    Action
	Subject   string // verification session id or issuance session handle
	Decision  string
	Reason    string
	RequestID string
}

type Action string

const (
	ActionPresentationVerified Action = "presentation_verified"
	ActionTrustRefreshed       Action = "trust_refreshed"
	ActionTrustStaleFallback   Action = "trust_stale_fallback"
	ActionCodeIssued           Action = "authorization_code_issued"
	ActionTokenIssued          Action = "access_token_issued"
	ActionCredentialIssued     Action = "credential_issued"
	ActionIssuanceRejected     Action = "issuance_rejected"
	ActionCredentialVerified   Action = "credential_verified"
)
