package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Ключи контекста gin
const (
	ctxAPIKeyName      = "api_key_name"
	ctxAPIKeyValidated = "api_key_validated"
)

// APIKeyConfig конфигурация для API key аутентификации
type APIKeyConfig struct {
	// ValidKeys карта валидных API ключей к их описаниям
	ValidKeys map[string]string
	// HeaderName имя заголовка для API ключа (по умолчанию: X-API-Key)
	HeaderName string
	// Optional если true, запросы без API ключа будут обработаны (но без повышенных привилегий)
	Optional bool
}

// DefaultAPIKeyConfig конфигурация по умолчанию
var DefaultAPIKeyConfig = APIKeyConfig{
	HeaderName: "X-API-Key",
	Optional:   false,
}

// APIKey middleware для аутентификации клиента API по ключу.
// Authorization зарезервирован под токен владельца, поэтому ключ читается только из своего заголовка.
type APIKey struct {
	config APIKeyConfig
}

// NewAPIKey создаёт новый API key middleware
func NewAPIKey(config APIKeyConfig) *APIKey {
	if config.HeaderName == "" {
		config.HeaderName = DefaultAPIKeyConfig.HeaderName
	}
	return &APIKey{config: config}
}

// Middleware возвращает Gin middleware handler для API key аутентификации
func (ak *APIKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(ak.config.HeaderName)

		if apiKey == "" {
			if ak.config.Optional {
				c.Set(ctxAPIKeyValidated, false)
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "Требуется API ключ в заголовке " + ak.config.HeaderName,
			})
			return
		}

		keyName, ok := ak.lookup(apiKey)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "Невалидный API ключ",
			})
			return
		}

		c.Set(ctxAPIKeyValidated, true)
		c.Set(ctxAPIKeyName, keyName)
		c.Next()
	}
}

// lookup сравнивает ключ со всеми валидными за постоянное время
func (ak *APIKey) lookup(apiKey string) (string, bool) {
	var (
		found   bool
		keyName string
	)
	for validKey, name := range ak.config.ValidKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
			found = true
			keyName = name
		}
	}
	return keyName, found
}

// RequireAPIKey хелпер для создания middleware, требующего API ключ
func RequireAPIKey(validKeys map[string]string) gin.HandlerFunc {
	return NewAPIKey(APIKeyConfig{ValidKeys: validKeys}).Middleware()
}

// APIKeyName возвращает описание ключа, которым аутентифицирован запрос
func APIKeyName(c *gin.Context) string {
	return c.GetString(ctxAPIKeyName)
}

// IsAPIKeyValidated проверяет, был ли API ключ успешно валидирован
func IsAPIKeyValidated(c *gin.Context) bool {
	return c.GetBool(ctxAPIKeyValidated)
}
