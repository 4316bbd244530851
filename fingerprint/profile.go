// Package fingerprint provides a fixed pool of browser identities whose
// user-agent, client hints, headers and viewport agree with each other.
//
// A header set that contradicts its user-agent (a mobile client-hint next
// to a desktop user-agent, client hints from a browser that never sends
// them) is what anti-bot filters look for first, so every profile is checked
// for consistency when the pool is built.
package fingerprint

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// DeviceClass is desktop or mobile.
type DeviceClass string

const (
	Desktop DeviceClass = "desktop"
	Mobile  DeviceClass = "mobile"
)

// Browser families.
const (
	Chrome  = "chrome"
	Edge    = "edge"
	Firefox = "firefox"
	Safari  = "safari"
	Samsung = "samsung"
)

// Viewport is the emulated screen.
type Viewport struct {
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	DeviceScaleFactor float64 `json:"device_scale_factor"`
	Mobile            bool    `json:"mobile"`
	Touch             bool    `json:"touch"`
}

// Profile is one immutable browser identity.
type Profile struct {
	ID            string      `json:"id"`
	UserAgent     string      `json:"user_agent"`
	Platform      string      `json:"platform"` // navigator.platform
	BrowserFamily string      `json:"browser_family,omitempty"`
	DeviceClass   DeviceClass `json:"device_class"`
	Viewport      Viewport    `json:"viewport"`
	Locale        string      `json:"locale"`
	headers       http.Header
}

// Headers returns a copy of the profile's request headers. Accept-Encoding
// is left to the transport so responses are decompressed transparently.
func (p Profile) Headers() http.Header {
	h := p.headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("User-Agent", p.UserAgent)
	return h
}

// AcceptLanguage returns the Accept-Language header value.
func (p Profile) AcceptLanguage() string {
	return p.headers.Get("Accept-Language")
}

// ErrInconsistent is wrapped by Validate failures.
var ErrInconsistent = errors.New("fingerprint: inconsistent profile")

var (
	chromeVersionRe = regexp.MustCompile(`Chrome/(\d+)`)
	brandVersionRe  = regexp.MustCompile(`"Chromium";v="(\d+)"`)
)

// IsMobileUA reports whether a user-agent string claims a mobile device.
func IsMobileUA(ua string) bool {
	return strings.Contains(ua, "Mobile") ||
		strings.Contains(ua, "Android") ||
		strings.Contains(ua, "iPhone") ||
		strings.Contains(ua, "iPad")
}

func isChromium(ua string) bool {
	return strings.Contains(ua, "Chrome/") && !strings.Contains(ua, "Firefox/")
}

// Validate checks that the user-agent, client hints, device class and
// viewport tell the same story.
func (p Profile) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInconsistent, p.ID, fmt.Sprintf(format, args...))
	}
	if p.UserAgent == "" {
		return fail("empty user-agent")
	}
	if p.Viewport.Width <= 0 || p.Viewport.Height <= 0 {
		return fail("empty viewport")
	}

	mobileUA := IsMobileUA(p.UserAgent)
	switch p.DeviceClass {
	case Mobile:
		if !mobileUA {
			return fail("mobile class with desktop user-agent")
		}
		if !p.Viewport.Mobile {
			return fail("mobile class with desktop viewport")
		}
	case Desktop:
		if mobileUA {
			return fail("desktop class with mobile user-agent")
		}
		if p.Viewport.Mobile || p.Viewport.Touch {
			return fail("desktop class with mobile viewport")
		}
	default:
		return fail("unknown device class %q", p.DeviceClass)
	}

	hint := p.headers.Get("Sec-Ch-Ua")
	hintMobile := p.headers.Get("Sec-Ch-Ua-Mobile")
	if !isChromium(p.UserAgent) {
		if hint != "" || hintMobile != "" || p.headers.Get("Sec-Ch-Ua-Platform") != "" {
			return fail("client hints on a non-Chromium user-agent")
		}
		return nil
	}

	if hint == "" {
		return fail("Chromium user-agent without client hints")
	}
	want := "?0"
	if mobileUA {
		want = "?1"
	}
	if hintMobile != want {
		return fail("Sec-Ch-Ua-Mobile %s for this user-agent, want %s", hintMobile, want)
	}
	ua := chromeVersionRe.FindStringSubmatch(p.UserAgent)
	brand := brandVersionRe.FindStringSubmatch(hint)
	if ua == nil || brand == nil || ua[1] != brand[1] {
		return fail("Sec-Ch-Ua version does not match user-agent")
	}
	if plat := strings.Trim(p.headers.Get("Sec-Ch-Ua-Platform"), `"`); plat != hintPlatform(p.Platform) {
		return fail("Sec-Ch-Ua-Platform %q for platform %q", plat, p.Platform)
	}
	return nil
}

// hintPlatform maps navigator.platform to its client-hint name.
func hintPlatform(platform string) string {
	switch {
	case platform == "Win32":
		return "Windows"
	case platform == "MacIntel":
		return "macOS"
	case strings.HasPrefix(platform, "Linux armv"), strings.HasPrefix(platform, "Linux aarch"):
		return "Android"
	case strings.HasPrefix(platform, "Linux"):
		return "Linux"
	case platform == "iPhone":
		return "iOS"
	}
	return platform
}
