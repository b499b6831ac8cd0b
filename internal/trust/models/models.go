package models

import (
	"crypto/x509"
	"fmt"
	"strings"
	"time"
)

// Certificate is one issuer signing key published for a jurisdiction.
type Certificate struct {
	KeyID      string    `json:"kid"`
	Type       string    `json:"type"`
	Algorithm  string    `json:"alg"`
	PublicKey  string    `json:"publicKey"`
	ValidFrom  time.Time `json:"validFrom"`
	ValidUntil time.Time `json:"validUntil"`
}

// ValidAt reports whether now falls inside [ValidFrom, ValidUntil].
func (c Certificate) ValidAt(now time.Time) bool {
	return !now.Before(c.ValidFrom) && !now.After(c.ValidUntil)
}

// Record is the trust entry for one jurisdiction.
type Record struct {
	Code         string        `json:"code"`
	Name         string        `json:"name"`
	IssuerLabel  string        `json:"issuer"`
	Certificates []Certificate `json:"certificates"`
}

// Certificate returns the certificate with kid, if any.
func (r Record) Certificate(kid string) (Certificate, bool) {
	for _, c := range r.Certificates {
		if c.KeyID == kid {
			return c, true
		}
	}
	return Certificate{}, false
}

// Validate enforces unique kids and ordered validity windows.
func (r Record) Validate() error {
	if len(r.Code) != 2 {
		return fmt.Errorf("jurisdiction code %q must have two letters", r.Code)
	}
	seen := make(map[string]struct{}, len(r.Certificates))
	for _, c := range r.Certificates {
		if c.KeyID == "" {
			return fmt.Errorf("%s: certificate without kid", r.Code)
		}
		if _, dup := seen[c.KeyID]; dup {
			return fmt.Errorf("%s: duplicate kid %q", r.Code, c.KeyID)
		}
		seen[c.KeyID] = struct{}{}
		if c.ValidFrom.After(c.ValidUntil) {
			return fmt.Errorf("%s: kid %q validFrom after validUntil", r.Code, c.KeyID)
		}
	}
	return nil
}

// TrustList is the wire document served by the trust endpoint.
type TrustList struct {
	Version       string   `json:"version"`
	Jurisdictions []Record `json:"jurisdictions"`
}

// Root is a per-jurisdiction root certificate. Available is false when the
// root could not be fetched or parsed; the jurisdiction is then untrusted
// under root pinning.
type Root struct {
	Code        string
	Available   bool
	Certificate *x509.Certificate
}

// Snapshot is an immutable view of the trust cache.
type Snapshot struct {
	Records   map[string]Record
	Roots     map[string]Root
	FetchedAt time.Time
	Version   string
	Stale     bool
}

// Record looks up a jurisdiction case-insensitively.
func (s *Snapshot) Record(code string) (Record, bool) {
	r, ok := s.Records[strings.ToUpper(code)]
	return r, ok
}

// Decision reasons returned by VerifyIssuer.
const (
	ReasonAccepted                = "accepted"
	ReasonMalformedIssuer         = "malformed_issuer"
	ReasonJurisdictionNotAccepted = "jurisdiction_not_accepted"
	ReasonUnknownJurisdiction     = "unknown_jurisdiction"
	ReasonUnknownKeyID            = "unknown_kid"
	ReasonNotYetValid             = "certificate_not_yet_valid"
	ReasonExpired                 = "certificate_expired"
	ReasonRootUnavailable         = "root_unavailable"
	ReasonNotChained              = "certificate_not_chained"
)

// IssuerDecision is the result of pinning an issuer label + kid.
type IssuerDecision struct {
	Accepted     bool
	Reason       string
	Jurisdiction string
	Certificate  *Certificate
	Stale        bool
}

// JurisdictionOf extracts the uppercase prefix of an issuer label up to the
// first separator (- _ : / space .). The whole label is used when there is none.
func JurisdictionOf(issuerLabel string) string {
	label := strings.TrimSpace(issuerLabel)
	if i := strings.IndexAny(label, "-_:/ ."); i >= 0 {
		label = label[:i]
	}
	return strings.ToUpper(label)
}

// CacheFile is the on-disk form of the trust cache.
type CacheFile struct {
	Version       string    `json:"version"`
	FetchedAt     time.Time `json:"fetchedAt"`
	Jurisdictions []Record  `json:"jurisdictions"`
}
