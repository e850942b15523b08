package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mssola/useragent"
)

// Cookie браузерной сессии; переживает несколько переходов одного посетителя
const (
	sessionCookie    = "rc_sid"
	sessionCookieTTL = 30 * 24 * 60 * 60
)

// HashVisitor отпечаток посетителя: SHA256 от IP и User-Agent.
// Сырые IP и User-Agent нигде не сохраняются.
func HashVisitor(ip, userAgent string) string {
	hash := sha256.Sum256([]byte(ip + userAgent))
	return hex.EncodeToString(hash[:])
}

// visitorFingerprint отпечаток текущего запроса
func visitorFingerprint(c *gin.Context) string {
	return HashVisitor(c.ClientIP(), c.Request.UserAgent())
}

// ParseDevice определяет тип устройства, браузер и ОС по User-Agent
func ParseDevice(raw string) models.DeviceInfo {
	if strings.TrimSpace(raw) == "" {
		return models.DeviceInfo{Type: models.DeviceUnknown}
	}

	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	info := models.DeviceInfo{
		Browser: browser,
		OS:      ua.OS(),
	}

	switch {
	case ua.Bot():
		info.Type = models.DeviceBot
	case strings.Contains(ua.Platform(), "iPad") || strings.Contains(raw, "Tablet"):
		info.Type = models.DeviceTablet
	case ua.Mobile():
		info.Type = models.DeviceMobile
	default:
		info.Type = models.DeviceDesktop
	}
	return info
}

// requestLocation геоданные из заголовков, проставленных CDN или балансировщиком
func requestLocation(c *gin.Context) models.LocationInfo {
	country := c.GetHeader("CF-IPCountry")
	if country == "" {
		country = c.GetHeader("X-Geo-Country")
	}
	// XX и T1 Cloudflare ставит для неизвестной страны и Tor
	if country == "XX" || country == "T1" {
		country = ""
	}
	return models.LocationInfo{
		Country: strings.ToUpper(country),
		Region:  c.GetHeader("X-Geo-Region"),
		City:    c.GetHeader("X-Geo-City"),
	}
}

// browserSession возвращает id сессии из cookie, выдавая новый при отсутствии
func browserSession(c *gin.Context) string {
	if sid, err := c.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(sid); err == nil {
			return sid
		}
	}

	sid := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, sid, sessionCookieTTL, "/", "", false, true)
	return sid
}
