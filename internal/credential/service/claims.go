package service

import (
	"fmt"
	"slices"
	"strings"

	"mdlgate/internal/credential/sdjwt"
)

// ClaimsMode selects which claims a derived credential carries.
type ClaimsMode string

const (
	// ClaimsMinimal issues over21 and notExpired only.
	ClaimsMinimal ClaimsMode = "minimal"
	// ClaimsMirror issues every boolean predicate of the verification.
	ClaimsMirror ClaimsMode = "mirror"
)

const (
	claimOver21     = "over21"
	claimNotExpired = "notExpired"
)

// ParseClaimsMode parses a configured mode. Empty means minimal.
func ParseClaimsMode(s string) (ClaimsMode, error) {
	switch ClaimsMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ClaimsMinimal:
		return ClaimsMinimal, nil
	case ClaimsMirror:
		return ClaimsMirror, nil
	default:
		return "", fmt.Errorf("unknown claims mode %q", s)
	}
}

// ClaimsFromPredicates turns verified predicates into credential claims.
// A nil map means the verification outcome is unknown; the minimal policy
// then issues its fixed claim set as true.
func ClaimsFromPredicates(predicates map[string]bool, mode ClaimsMode) []sdjwt.Claim {
	if mode == ClaimsMirror && len(predicates) > 0 {
		names := make([]string, 0, len(predicates))
		for name := range predicates {
			names = append(names, name)
		}
		slices.Sort(names)
		claims := make([]sdjwt.Claim, 0, len(names))
		for _, name := range names {
			claims = append(claims, sdjwt.Claim{Name: name, Value: predicates[name]})
		}
		return claims
	}

	if predicates == nil {
		return []sdjwt.Claim{
			{Name: claimOver21, Value: true},
			{Name: claimNotExpired, Value: true},
		}
	}
	return []sdjwt.Claim{
		{Name: claimOver21, Value: predicates[claimOver21]},
		{Name: claimNotExpired, Value: predicates[claimNotExpired]},
	}
}
