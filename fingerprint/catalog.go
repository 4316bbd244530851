package fingerprint

import (
	"fmt"
	"net/http"
)

const (
	acceptChromium = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	acceptFirefox  = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	acceptSafari   = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

var languages = []struct{ locale, header string }{
	{"en-US", "en-US,en;q=0.9"},
	{"nl-NL", "nl-NL,nl;q=0.9,en-US;q=0.8,en;q=0.7"},
	{"de-DE", "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7"},
	{"en-GB", "en-GB,en;q=0.9"},
	{"fr-FR", "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7"},
}

type desktopOS struct {
	key      string
	uaToken  string // inside the first parenthesis of the user-agent
	ffToken  string // Firefox variant, without the rv: suffix
	platform string
	viewport Viewport
}

var (
	windows = desktopOS{"win", "Windows NT 10.0; Win64; x64", "Windows NT 10.0; Win64; x64", "Win32",
		Viewport{Width: 1920, Height: 1080, DeviceScaleFactor: 1}}
	macOS = desktopOS{"mac", "Macintosh; Intel Mac OS X 10_15_7", "Macintosh; Intel Mac OS X 10.15", "MacIntel",
		Viewport{Width: 1440, Height: 900, DeviceScaleFactor: 2}}
	linux = desktopOS{"linux", "X11; Linux x86_64", "X11; Linux x86_64", "Linux x86_64",
		Viewport{Width: 1366, Height: 768, DeviceScaleFactor: 1}}
)

type mobileDevice struct {
	key      string
	model    string
	android  string
	platform string
	viewport Viewport
}

var androids = []mobileDevice{
	{"pixel7", "Pixel 7", "14", "Linux armv81", Viewport{Width: 412, Height: 915, DeviceScaleFactor: 2.625, Mobile: true, Touch: true}},
	{"pixel8", "Pixel 8", "14", "Linux armv81", Viewport{Width: 412, Height: 915, DeviceScaleFactor: 2.625, Mobile: true, Touch: true}},
	{"s23", "SM-S911B", "13", "Linux armv81", Viewport{Width: 360, Height: 780, DeviceScaleFactor: 3, Mobile: true, Touch: true}},
}

var iphones = []struct {
	key      string
	viewport Viewport
}{
	{"iphone14", Viewport{Width: 390, Height: 844, DeviceScaleFactor: 3, Mobile: true, Touch: true}},
	{"iphone15", Viewport{Width: 393, Height: 852, DeviceScaleFactor: 3, Mobile: true, Touch: true}},
}

// Catalog builds the default profile set. The result is freshly allocated.
func Catalog() []Profile {
	var out []Profile
	add := func(p Profile, h http.Header) {
		lang := languages[len(out)%len(languages)]
		p.Locale = lang.locale
		h.Set("Accept-Language", lang.header)
		h.Set("Upgrade-Insecure-Requests", "1")
		h.Set("Sec-Fetch-Dest", "document")
		h.Set("Sec-Fetch-Mode", "navigate")
		h.Set("Sec-Fetch-Site", "none")
		h.Set("Sec-Fetch-User", "?1")
		p.headers = h
		out = append(out, p)
	}

	for _, v := range []int{124, 125, 126} {
		for _, os := range []desktopOS{windows, macOS, linux} {
			ua := fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36", os.uaToken, v)
			add(Profile{
				ID: fmt.Sprintf("chrome%d-%s", v, os.key), UserAgent: ua, Platform: os.platform,
				BrowserFamily: Chrome, DeviceClass: Desktop, Viewport: os.viewport,
			}, chromiumHeaders(
				fmt.Sprintf(`"Google Chrome";v="%d", "Chromium";v="%d", "Not.A/Brand";v="24"`, v, v),
				false, hintPlatform(os.platform)))
		}
	}

	add(Profile{
		ID:        "edge125-win",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36 Edg/125.0.0.0",
		Platform:  windows.platform, BrowserFamily: Edge, DeviceClass: Desktop,
		Viewport: Viewport{Width: 1536, Height: 864, DeviceScaleFactor: 1.25},
	}, chromiumHeaders(`"Microsoft Edge";v="125", "Chromium";v="125", "Not.A/Brand";v="24"`, false, "Windows"))

	for _, v := range []int{126, 127} {
		for _, os := range []desktopOS{windows, macOS} {
			ua := fmt.Sprintf("Mozilla/5.0 (%s; rv:%d.0) Gecko/20100101 Firefox/%d.0", os.ffToken, v, v)
			add(Profile{
				ID: fmt.Sprintf("firefox%d-%s", v, os.key), UserAgent: ua, Platform: os.platform,
				BrowserFamily: Firefox, DeviceClass: Desktop, Viewport: os.viewport,
			}, http.Header{"Accept": {acceptFirefox}})
		}
	}

	add(Profile{
		ID:        "safari17-mac",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
		Platform:  macOS.platform, BrowserFamily: Safari, DeviceClass: Desktop,
		Viewport: Viewport{Width: 1728, Height: 1117, DeviceScaleFactor: 2},
	}, http.Header{"Accept": {acceptSafari}})

	for _, d := range androids {
		ua := fmt.Sprintf("Mozilla/5.0 (Linux; Android %s; %s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36", d.android, d.model)
		add(Profile{
			ID: "chrome126-" + d.key, UserAgent: ua, Platform: d.platform,
			BrowserFamily: Chrome, DeviceClass: Mobile, Viewport: d.viewport,
		}, chromiumHeaders(`"Google Chrome";v="126", "Chromium";v="126", "Not.A/Brand";v="24"`, true, "Android"))
	}

	add(Profile{
		ID:        "samsung25-s23",
		UserAgent: "Mozilla/5.0 (Linux; Android 14; SM-S911B) AppleWebKit/537.36 (KHTML, like Gecko) SamsungBrowser/25.0 Chrome/121.0.0.0 Mobile Safari/537.36",
		Platform:  "Linux armv81", BrowserFamily: Samsung, DeviceClass: Mobile,
		Viewport: androids[2].viewport,
	}, chromiumHeaders(`"Samsung Internet";v="25", "Chromium";v="121", "Not.A/Brand";v="99"`, true, "Android"))

	for _, d := range iphones {
		add(Profile{
			ID:        "safari17-" + d.key,
			UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
			Platform:  "iPhone", BrowserFamily: Safari, DeviceClass: Mobile, Viewport: d.viewport,
		}, http.Header{"Accept": {acceptSafari}})
	}

	return out
}

func chromiumHeaders(brands string, mobile bool, platform string) http.Header {
	m := "?0"
	if mobile {
		m = "?1"
	}
	return http.Header{
		"Accept":             {acceptChromium},
		"Sec-Ch-Ua":          {brands},
		"Sec-Ch-Ua-Mobile":   {m},
		"Sec-Ch-Ua-Platform": {`"` + platform + `"`},
	}
}
