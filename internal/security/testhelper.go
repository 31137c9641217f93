package security

import "time"

// Issuer and audience of tokens minted by NewTestTokenProvider.
const (
	TestIssuer   = "koursa-test"
	TestAudience = "koursa-test"
)

// NewTestTokenProvider returns an ES256 TokenProvider over a fresh P-256 key, for tests and the
// in-process dev backend they start. Access tokens last 15 minutes, refresh tokens a day.
func NewTestTokenProvider() (*TokenProvider, error) {
	signer, pub, err := LoadKeyPair("", "")
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, pub, TestIssuer, TestAudience, 15*time.Minute, 24*time.Hour), nil
}
