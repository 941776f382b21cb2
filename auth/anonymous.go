package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	DeviceCookie = "mi_coach_anon_id"
	DeviceHeader = "X-Device-ID"

	deviceCookieMaxAge = 30 * 24 * 60 * 60
	devicePrefix       = "anon_"
)

// NewDeviceID returns a fresh anonymous device id.
func NewDeviceID() string {
	return devicePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidDeviceID reports whether id looks like one NewDeviceID produced.
func ValidDeviceID(id string) bool {
	if !strings.HasPrefix(id, devicePrefix) || len(id) != len(devicePrefix)+32 {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(id, devicePrefix))
	return err == nil
}

// deviceID reads the device id from the header or cookie, minting one when
// neither is valid. The cookie is refreshed on every request.
func deviceID(c *gin.Context) string {
	id := c.GetHeader(DeviceHeader)
	if !ValidDeviceID(id) {
		id, _ = c.Cookie(DeviceCookie)
	}
	if !ValidDeviceID(id) {
		id = NewDeviceID()
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     DeviceCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   deviceCookieMaxAge,
		HttpOnly: true,
		Secure:   c.Request.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
