// Package session mints and verifies the bearer tokens handed out at login.
//
// A token is an HS256 JWT whose "jti" is a random UUID and whose "sub" is the
// user id. The signature makes fabricated tokens cheap to reject; backends
// still keep a record per jti so tokens can be revoked and pruned.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/minichat/internal/common"
	"github.com/dmitrijs2005/minichat/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuerName = "minichat"

type Claims struct {
	jwt.RegisteredClaims
}

// UserID decodes the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", common.ErrInvalidToken)
	}
	return id, nil
}

type Issuer struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

func NewIssuer(secret []byte, validity time.Duration) *Issuer {
	return &Issuer{secret: secret, validity: validity, now: time.Now}
}

// Validity reports how long issued tokens stay valid.
func (i *Issuer) Validity() time.Duration {
	return i.validity
}

// Issue signs a new token for userID.
func (i *Issuer) Issue(userID int64) (*models.SessionToken, error) {
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.validity)
	id := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    issuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	value, err := token.SignedString(i.secret)
	if err != nil {
		return nil, err
	}

	return &models.SessionToken{
		ID:        id,
		UserID:    userID,
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// Parse verifies value and returns its claims. Expired tokens yield
// common.ErrTokenExpired, anything else that fails yields
// common.ErrInvalidToken.
func (i *Issuer) Parse(value string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.ID == "" {
		return nil, common.ErrInvalidToken
	}

	if _, err := claims.UserID(); err != nil {
		return nil, err
	}

	return claims, nil
}

// TokenID returns the jti of a token signed by this issuer without checking
// its time claims, so expired tokens can still be revoked or pruned.
func (i *Issuer) TokenID(value string) (string, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || claims.ID == "" {
		return "", common.ErrInvalidToken
	}
	return claims.ID, nil
}
