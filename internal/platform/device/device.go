// Package device derives a coarse, non-identifying device context from the
// User-Agent. Browser credential API presentations are logged with it.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/mssola/useragent"
)

// Describe returns a fingerprint (browser family, major version, OS, form
// factor, hashed) and a display label such as "Chrome on Android".
func Describe(userAgent string) (fingerprint, label string) {
	if userAgent == "" {
		return "", "Unknown Device"
	}
	ua := useragent.New(userAgent)
	return fingerprintOf(ua), labelOf(ua)
}

// SupportsDigitalCredentials reports whether the browser family is one that
// ships the Digital Credentials API. Used for diagnostics only.
func SupportsDigitalCredentials(userAgent string) bool {
	ua := useragent.New(userAgent)
	browser, version := ua.Browser()
	major, err := strconv.Atoi(majorVersion(version))
	if err != nil {
		return false
	}
	switch strings.ToLower(browser) {
	case "chrome", "edge":
		return major >= 141
	case "safari":
		return major >= 26
	default:
		return false
	}
}

func fingerprintOf(ua *useragent.UserAgent) string {
	browser, version := ua.Browser()
	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	}
	data := fmt.Sprintf("%s|%s|%s|%s",
		normalize(browser), majorVersion(version), normalize(ua.OS()), platform)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func labelOf(ua *useragent.UserAgent) string {
	browser, _ := ua.Browser()
	if ua.Mobile() {
		if p := ua.Platform(); p != "" {
			return strings.TrimSpace(browser + " on " + p)
		}
	}
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := ua.OS()
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}

func majorVersion(version string) string {
	if major, _, _ := strings.Cut(version, "."); major != "" {
		return major
	}
	return "unknown"
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
