// Package jwt verifies the access tokens issued by the identity provider.
package jwt

import (
	"context"
	"net/http"
	"strings"
	"time"

	"devspace-backend/errs"
	"devspace-backend/log"
	"github.com/golang-jwt/jwt/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const Issuer = "devspace"

type AccessClaims struct {
	UserID string `json:"user_id"`
	jwt.StandardClaims
}

type ctxKey struct{}

func NewAccessToken(userID primitive.ObjectID, key []byte, exp time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, &AccessClaims{
		UserID: userID.Hex(),
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: exp.Unix(),
			IssuedAt:  time.Now().Unix(),
			Issuer:    Issuer,
		},
	})

	ss, err := token.SignedString(key)
	if err != nil {
		log.Logger.Error("signing failure", zap.Error(err))
		return "", err
	}

	return ss, nil
}

func ValidateAccessToken(token string, key []byte) (*AccessClaims, error) {
	t, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS512 {
			return nil, errs.ErrJWT
		}
		return key, nil
	})
	if err != nil {
		log.Logger.Debug("parse failure", zap.Error(err))
		if ve, ok := err.(*jwt.ValidationError); ok && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, errs.ErrTokenExpired
		}
		return nil, errs.ErrJWT
	}

	c := t.Claims.(*AccessClaims)
	if c.ExpiresAt == 0 || c.ExpiresAt < time.Now().Unix() {
		return nil, errs.ErrTokenExpired
	}
	if !primitive.IsValidObjectID(c.UserID) {
		return nil, errs.ErrJWT
	}

	return c, nil
}

// UserIDFromContext returns the user id a verified token carried.
func UserIDFromContext(ctx context.Context) (primitive.ObjectID, bool) {
	id, ok := ctx.Value(ctxKey{}).(primitive.ObjectID)
	return id, ok
}

func WithUserID(ctx context.Context, id primitive.ObjectID) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Middleware rejects requests without a valid bearer token and stores the
// token's user id in the request context. onError writes the rejection.
func Middleware(key []byte, onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if header == "" || token == header {
				onError(w, r, errs.ErrUnauthorized)
				return
			}

			claims, err := ValidateAccessToken(token, key)
			if err != nil {
				onError(w, r, err)
				return
			}

			id, _ := primitive.ObjectIDFromHex(claims.UserID)
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}
