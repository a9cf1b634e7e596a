package models

import "time"

// TokenInfo holds the bearer token state for one client instance.
// It is mutated only by the client's login/refresh paths.
type TokenInfo struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// IsExpiring reports whether the token is within threshold of its expiry.
func (t TokenInfo) IsExpiring(threshold time.Duration) bool {
	return !time.Now().Add(threshold).Before(t.ExpiresAt)
}

// TokenResponse is the body returned by the OAuth token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// LinkResponse is the body returned by the category stats endpoint. The
// actual CSV lives behind the signed, time-limited Link.
type LinkResponse struct {
	Link    string `json:"link"`
	Expires string `json:"expires"`
}
