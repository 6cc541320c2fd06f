package mw

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"flats-rental-backend/internal/model"
	"flats-rental-backend/internal/parse"
)

const (
	// DepositHeader carries the yocto amount attached to a call.
	DepositHeader = "X-Attached-Deposit"

	callerKey  = "caller"
	depositKey = "deposit"
)

// Claims identifies the signing account in Subject.
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs a token naming account as the caller. flatsd itself only
// verifies tokens. They are minted by an external issuer holding the same
// secret; this is the reference signing that issuer must match.
func IssueToken(secret []byte, account string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateToken checks the signature and expiry of an HS256 token.
func ValidateToken(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if err := parse.ValidateAccountID(claims.Subject); err != nil {
		return nil, err
	}
	return claims, nil
}

// Caller authenticates the calling account from a bearer token and reads
// the attached deposit. Handlers behind it use CallerFrom and DepositFrom.
func Caller(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}
		claims, err := ValidateToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		deposit := decimal.Zero
		if raw := c.GetHeader(DepositHeader); raw != "" {
			if deposit, err = model.ParseBalance(raw); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		c.Set(callerKey, claims.Subject)
		c.Set(depositKey, deposit)
		c.Next()
	}
}

// CallerFrom returns the authenticated account, or "" outside Caller.
func CallerFrom(c *gin.Context) string {
	return c.GetString(callerKey)
}

func DepositFrom(c *gin.Context) decimal.Decimal {
	if v, ok := c.Get(depositKey); ok {
		return v.(decimal.Decimal)
	}
	return decimal.Zero
}
