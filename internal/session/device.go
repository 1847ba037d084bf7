package session

import (
	"strings"

	"github.com/mssola/useragent"
)

// DeviceLabel turns a User-Agent header into "Browser on OS".
func DeviceLabel(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "Unknown device"
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "Bot"
	}
	browser, _ := ua.Browser()
	osName := ua.OSInfo().Name
	switch {
	case browser != "" && osName != "":
		return browser + " on " + osName
	case browser != "":
		return browser
	case osName != "":
		return osName
	}
	return "Unknown device"
}
