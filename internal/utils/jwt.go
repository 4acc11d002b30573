package utils // package utils provides helper functions for service token creation and parsing

import (
    "errors"
    "time" // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating and validating signed tokens
)

// RoleIssuer is the role claim required to write to the ticket registry.
// Tokens with this role are held by the issuance pipeline and the operator
// CLI, never by attendees.
const RoleIssuer = "ISSUER"

var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed JWT along with its expiry.  The Token
// field is sent in the Authorization header when calling protected
// endpoints.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// Claims are the fields the registry reads back from a token.
type Claims struct {
    Subject string
    Role    string
    Exp     time.Time
}

// NewAccessToken builds and signs an HS256 JWT for a service principal.  The
// subject names the caller (for example "ticketctl" or a box office id),
// role is normally RoleIssuer and ttlMin bounds the lifetime in minutes.
func NewAccessToken(secret, subject, role string, ttlMin int) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub":  subject,
        "role": role,
        "exp":  exp.Unix(),
        "iat":  now.Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken validates raw against secret and returns its claims.
// Only HMAC signed tokens are accepted; expiry is enforced by the jwt
// parser.
func ParseAccessToken(secret, raw string) (Claims, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        return []byte(secret), nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
    if err != nil || !tok.Valid {
        return Claims{}, ErrInvalidToken
    }
    mc, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return Claims{}, ErrInvalidToken
    }
    var c Claims
    c.Subject, _ = mc["sub"].(string)
    c.Role, _ = mc["role"].(string)
    if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
        c.Exp = exp.Time.UTC()
    }
    return c, nil
}
