package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/brixsport/go-auth-client/session"
)

// Classification is the advisory freshness state of an access token.
type Classification string

const (
	Fresh        Classification = "fresh"
	ExpiringSoon Classification = "expiring_soon"
	Expired      Classification = "expired"
	Invalid      Classification = "invalid" // Malformed or missing expiry; callers treat as Expired
)

// DefaultLeadTime is how long before expiry a token is considered
// ExpiringSoon, giving the proactive refresh a window before the server
// starts rejecting the token.
const DefaultLeadTime = 10 * time.Minute

// Oracle decodes an access token's expiry claim and classifies it for
// refresh scheduling. The decode is advisory: the signature is never
// verified (that is the server's job) and the result is never used for
// authorization decisions.
type Oracle struct {
	leadTime time.Duration
	nowFunc  func() time.Time
}

type OracleOption func(*Oracle)

// WithLeadTime overrides the ExpiringSoon lead time.
func WithLeadTime(leadTime time.Duration) OracleOption {
	return func(o *Oracle) {
		o.leadTime = leadTime
	}
}

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(now func() time.Time) OracleOption {
	return func(o *Oracle) {
		o.nowFunc = now
	}
}

func NewOracle(options ...OracleOption) *Oracle {
	o := &Oracle{
		leadTime: DefaultLeadTime,
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// LeadTime returns the configured ExpiringSoon lead time.
func (o *Oracle) LeadTime() time.Duration {
	return o.leadTime
}

// Classify reports the freshness of the access token. Invalid is returned
// when the expiry claim cannot be decoded; it never panics on garbage input.
func (o *Oracle) Classify(accessToken string) Classification {
	expiresAt, err := o.ExpiresAt(accessToken)
	if err != nil {
		return Invalid
	}

	remaining := expiresAt.Sub(o.nowFunc())
	switch {
	case remaining <= 0:
		return Expired
	case remaining <= o.leadTime:
		return ExpiringSoon
	default:
		return Fresh
	}
}

// ExpiresAt decodes the exp claim without verifying the signature. It is
// called once when a session is stored so every consumer observes the same
// derived expiry instead of re-reading the token on each check.
func (o *Oracle) ExpiresAt(accessToken string) (time.Time, error) {
	claims, err := decodeClaims(accessToken)
	if err != nil {
		return time.Time{}, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, errors.Wrap(InvalidTokenErr, "[Oracle.ExpiresAt] missing exp claim")
	}
	return exp.Time, nil
}

// DecodeProfile extracts an advisory user profile from the token claims.
// The controller always confirms the profile through the validate endpoint
// before trusting it; the decoded copy only bridges the gap while validation
// is in flight or the auth service is unreachable.
func DecodeProfile(accessToken string) (*session.UserProfile, error) {
	claims, err := decodeClaims(accessToken)
	if err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.Wrap(InvalidTokenErr, "[DecodeProfile] missing sub claim")
	}

	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)

	profile := &session.UserProfile{
		ID:    sub,
		Name:  name,
		Email: email,
		Role:  session.RoleType(role),
	}

	if comps, ok := claims["assignedCompetitions"].([]interface{}); ok {
		profile.AssignedCompetitions = interfaceArrayToString(comps)
	}
	if perms, ok := claims["permissions"].([]interface{}); ok {
		profile.Permissions = interfaceArrayToString(perms)
	}
	return profile, nil
}

func decodeClaims(accessToken string) (jwt.MapClaims, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.Wrap(InvalidTokenErr, "[decodeClaims] empty token")
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrapf(InvalidTokenErr, "[decodeClaims] %v", err)
	}

	claims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Wrap(InvalidTokenErr, "[decodeClaims] error extracting claims")
	}
	return claims, nil
}

func interfaceArrayToString(iArray []interface{}) []string {
	stringSlice := make([]string, 0)
	for _, v := range iArray {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}
