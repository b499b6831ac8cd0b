package models

import (
	"encoding/json"
	"maps"
	"regexp"
	"slices"

	trust "mdlgate/internal/trust/models"
)

const (
	PredicateNotExpired         = "notExpired"
	PredicateIssuerJurisdiction = "issuerJurisdiction"
)

var ageOver = regexp.MustCompile(`^(?:org\.iso\.18013\.5\.1\.)?age_over_(\d{1,3})$`)

// Predicates is the minimized outcome of a verification: named booleans and
// the issuer jurisdiction. It has no exported fields; Minimize is the only
// way to populate one, so raw attribute values cannot end up here.
type Predicates struct {
	flags        map[string]bool
	jurisdiction string
}

// Minimize reduces raw remote predicates to booleans. age_over_NN claims
// become overNN, notExpired defaults to true unless explicitly false, and
// everything that is not a boolean is dropped. When several raw names map
// to the same predicate, an explicit false wins.
func Minimize(raw map[string]any, issuerLabel string) Predicates {
	p := Predicates{
		flags:        make(map[string]bool, len(raw)+1),
		jurisdiction: trust.JurisdictionOf(issuerLabel),
	}
	for name, value := range raw {
		b, ok := value.(bool)
		if !ok || name == PredicateIssuerJurisdiction {
			continue
		}
		if m := ageOver.FindStringSubmatch(name); m != nil {
			name = "over" + m[1]
		}
		if prev, seen := p.flags[name]; seen {
			b = b && prev
		}
		p.flags[name] = b
	}
	if v, ok := p.flags[PredicateNotExpired]; !ok || v {
		p.flags[PredicateNotExpired] = true
	}
	return p
}

// Bool returns a boolean predicate.
func (p Predicates) Bool(name string) (value, ok bool) {
	value, ok = p.flags[name]
	return value, ok
}

// IssuerJurisdiction is the uppercase jurisdiction of the credential
// issuer, or "" when the verifier named none.
func (p Predicates) IssuerJurisdiction() string {
	return p.jurisdiction
}

// Names returns the boolean predicate names in sorted order.
func (p Predicates) Names() []string {
	return slices.Sorted(maps.Keys(p.flags))
}

// Flags returns a copy of the boolean predicates.
func (p Predicates) Flags() map[string]bool {
	return maps.Clone(p.flags)
}

func (p Predicates) Len() int {
	n := len(p.flags)
	if p.jurisdiction != "" {
		n++
	}
	return n
}

func (p Predicates) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, p.Len())
	for name, v := range p.flags {
		out[name] = v
	}
	if p.jurisdiction != "" {
		out[PredicateIssuerJurisdiction] = p.jurisdiction
	}
	return json.Marshal(out)
}
