// Package routing decides how a tap on the landing page is dispatched:
// straight to the web link, or deep link first with a timed web fallback.
package routing

import "strings"

// OS is the coarse operating-system class derived from the user agent.
type OS string

const (
	OSIOS     OS = "ios"
	OSAndroid OS = "android"
	OSDesktop OS = "desktop"
	OSUnknown OS = "unknown"
)

// InAppBrowser identifies a known wrapped browser environment.
type InAppBrowser string

const (
	InAppInstagram InAppBrowser = "instagram"
	InAppFacebook  InAppBrowser = "facebook"
	InAppTikTok    InAppBrowser = "tiktok"
	InAppOther     InAppBrowser = "other"
	InAppNone      InAppBrowser = "none"
)

// Context is the device/browser signal set for one page load.
// It is immutable once computed from the user agent string.
type Context struct {
	OS           OS
	InAppBrowser InAppBrowser
	IsMobile     bool
}

// DetectContext classifies a raw User-Agent string.
// Unrecognized mobile agents map to OSUnknown; everything else is desktop.
func DetectContext(userAgent string) Context {
	ua := strings.ToLower(userAgent)

	isIOS := strings.Contains(ua, "iphone") ||
		strings.Contains(ua, "ipad") ||
		strings.Contains(ua, "ipod")
	isAndroid := strings.Contains(ua, "android")
	isMobile := isIOS || isAndroid

	var inApp InAppBrowser
	switch {
	case strings.Contains(ua, "instagram"):
		inApp = InAppInstagram
	case strings.Contains(ua, "fban"), strings.Contains(ua, "fbav"), strings.Contains(ua, "facebook"):
		inApp = InAppFacebook
	case strings.Contains(ua, "tiktok"):
		inApp = InAppTikTok
	case strings.Contains(ua, "wv"), strings.Contains(ua, "line"), strings.Contains(ua, "micromessenger"):
		inApp = InAppOther
	default:
		inApp = InAppNone
	}

	var os OS
	switch {
	case isIOS:
		os = OSIOS
	case isAndroid:
		os = OSAndroid
	case isMobile:
		os = OSUnknown
	default:
		os = OSDesktop
	}

	return Context{OS: os, InAppBrowser: inApp, IsMobile: isMobile}
}
