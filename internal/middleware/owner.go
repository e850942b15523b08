package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ctxOwner = "owner"

var errInvalidOwnerToken = errors.New("invalid owner token")

// OwnerClaims токен владельца, выпущенный внешним сервисом аутентификации.
// Subject содержит id арендатора или арендодателя.
type OwnerClaims struct {
	Role models.OwnerRole `json:"role"`
	jwt.RegisteredClaims
}

// OwnerAuth проверяет Bearer токен владельца (HS256) и кладёт models.Owner в контекст
type OwnerAuth struct {
	secret []byte
}

func NewOwnerAuth(secret string) *OwnerAuth {
	return &OwnerAuth{secret: []byte(secret)}
}

// Middleware отклоняет запрос без валидного токена владельца
func (oa *OwnerAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_owner_token",
				"message": "Требуется токен владельца в заголовке Authorization: Bearer",
			})
			return
		}

		owner, err := oa.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_owner_token",
				"message": "Невалидный токен владельца",
			})
			return
		}

		c.Set(ctxOwner, owner)
		c.Next()
	}
}

// Parse проверяет подпись и срок токена и возвращает владельца
func (oa *OwnerAuth) Parse(raw string) (models.Owner, error) {
	claims := &OwnerClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return oa.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Owner{}, err
	}
	if !token.Valid || !claims.Role.Valid() {
		return models.Owner{}, errInvalidOwnerToken
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return models.Owner{}, errInvalidOwnerToken
	}

	return models.Owner{Role: claims.Role, ID: id}, nil
}

// Sign выпускает токен владельца; используется в тестах и локальной отладке
func (oa *OwnerAuth) Sign(owner models.Owner, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &OwnerClaims{
		Role: owner.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(owner.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(oa.secret)
}

// OwnerFromContext возвращает владельца, установленного OwnerAuth
func OwnerFromContext(c *gin.Context) (models.Owner, bool) {
	v, exists := c.Get(ctxOwner)
	if !exists {
		return models.Owner{}, false
	}
	owner, ok := v.(models.Owner)
	return owner, ok
}
