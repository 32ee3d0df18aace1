package fetchkit

import (
	"bytes"
	"net/http"
	"strings"
)

// Detector examines a fetch result to determine whether a bot protection
// vendor blocked or challenged the request. The render provider often relays
// challenge pages with status 200, so detectors look at body signatures as
// well as status and headers.
type Detector func(res *Result) (detected bool, source string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Classify runs the result through the default detectors and updates it in
// place. A blocked result is a permanently-blocked source: retrying the same
// candidate will not succeed.
func Classify(res *Result) bool {
	return classify(res, DefaultDetectors())
}

func classify(res *Result, detectors []Detector) bool {
	if res == nil {
		return false
	}
	for _, d := range detectors {
		if detected, source := d(res); detected {
			res.Blocked = true
			res.BlockedBy = source
			return true
		}
	}
	res.Blocked = false
	res.BlockedBy = ""
	return false
}

func getHeader(headers map[string][]string, key string) string {
	if vals, ok := headers[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	// Case-insensitive fallback
	lowerKey := strings.ToLower(key)
	for k, vals := range headers {
		if strings.ToLower(k) == lowerKey && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

func detectCloudflare(res *Result) (bool, string) {
	if bytes.Contains(res.Body, []byte("cf-browser-verification")) ||
		bytes.Contains(res.Body, []byte("cf-turnstile")) ||
		bytes.Contains(res.Body, []byte("Checking your browser before accessing")) ||
		bytes.Contains(res.Body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}

	if res.StatusCode == http.StatusForbidden || res.StatusCode == http.StatusServiceUnavailable {
		server := strings.ToLower(getHeader(res.Headers, "Server"))
		if strings.Contains(server, "cloudflare") {
			return true, "Cloudflare"
		}
	}
	return false, ""
}

func detectAkamai(res *Result) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		server := strings.ToLower(getHeader(res.Headers, "Server"))
		if strings.Contains(server, "akamai") {
			return true, "Akamai"
		}
	}

	// Akamai often returns a generic "Reference #" block page
	if bytes.Contains(res.Body, []byte("Reference #")) && bytes.Contains(res.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(res *Result) (bool, string) {
	if getHeader(res.Headers, "X-DataDome") != "" || getHeader(res.Headers, "X-DataDome-Response") != "" {
		return true, "DataDome"
	}

	if bytes.Contains(res.Body, []byte("geo.captcha-delivery.com")) {
		return true, "DataDome"
	}

	if res.StatusCode == http.StatusForbidden && bytes.Contains(res.Body, []byte("datadome")) {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(res *Result) (bool, string) {
	if getHeader(res.Headers, "X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}

	if bytes.Contains(res.Body, []byte("_pxBlock")) || bytes.Contains(res.Body, []byte("px-captcha")) {
		return true, "PerimeterX"
	}
	return false, ""
}
