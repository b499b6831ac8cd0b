package domain

// GrantType is an OAuth 2.0 grant type.
type GrantType string

const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
)

// IsValid reports whether the grant type is supported.
func (g GrantType) IsValid() bool {
	return g == GrantTypeAuthorizationCode
}

func (g GrantType) String() string {
	return string(g)
}

// CredentialFormat is the requested credential encoding.
type CredentialFormat string

const (
	// FormatSDJWT is the only format the issuer produces.
	FormatSDJWT CredentialFormat = "vc+sd-jwt"
)

// ProofTypeJWT is the only holder proof type accepted at the credential endpoint.
const ProofTypeJWT = "jwt"
