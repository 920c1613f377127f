package rollup

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"analytiq/internal/events"
)

// ParseUserAgent classifies a raw user agent string into a browser family and
// an operating system. The checks are ordered substring matches: Edge ships
// both "Chrome" and "Edg" tokens, so Chrome must exclude "Edg", and every
// Chrome UA also carries "Safari", so Safari must exclude "Chrome".
func ParseUserAgent(ua string) (browser, os string) {
	browser = "Unknown"
	os = "Unknown"
	if ua == "" {
		return browser, os
	}

	switch {
	case strings.Contains(ua, "Chrome") && !strings.Contains(ua, "Edg"):
		browser = "Chrome"
	case strings.Contains(ua, "Safari") && !strings.Contains(ua, "Chrome"):
		browser = "Safari"
	case strings.Contains(ua, "Firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "Edg"):
		browser = "Edge"
	case strings.Contains(ua, "Opera") || strings.Contains(ua, "OPR"):
		browser = "Opera"
	}

	switch {
	case strings.Contains(ua, "Windows"):
		os = "Windows"
	case strings.Contains(ua, "Mac"):
		os = "macOS"
	case strings.Contains(ua, "Linux"):
		os = "Linux"
	case strings.Contains(ua, "Android"):
		os = "Android"
	case strings.Contains(ua, "iOS") || strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPad"):
		os = "iOS"
	}

	return browser, os
}

var socialHosts = []string{"facebook", "twitter", "linkedin", "instagram", "tiktok", "youtube"}

// TrafficSource buckets a pageview into paid, direct, organic, social or
// referral. Any UTM parameter wins over the referrer.
func TrafficSource(referrer string, hasUTM bool) string {
	if hasUTM {
		return "paid"
	}
	if referrer == "" {
		return "direct"
	}

	parsed, err := url.Parse(referrer)
	if err != nil {
		return "direct"
	}
	host := strings.ToLower(parsed.Host)

	if strings.Contains(host, "google.") || strings.Contains(host, "bing.") || strings.Contains(host, "yahoo.") {
		return "organic"
	}
	for _, social := range socialHosts {
		if strings.Contains(host, social) {
			return "social"
		}
	}
	return "referral"
}

// CampaignKey builds the UTM campaign counter key for a pageview. Events
// without any UTM parameter all land in the "direct_traffic" bucket.
func CampaignKey(p *events.Payload) string {
	if !p.HasUTM() {
		return "direct_traffic"
	}
	campaign := p.UTMCampaign
	if campaign == "" {
		campaign = "direct"
	}
	source := p.UTMSource
	if source == "" {
		source = "unknown"
	}
	medium := p.UTMMedium
	if medium == "" {
		medium = "unknown"
	}
	return fmt.Sprintf("%s_%s_%s", campaign, source, medium)
}

// PathFromURL extracts the path component of a page URL, defaulting to "/"
// for empty or unparseable input.
func PathFromURL(raw string) string {
	if raw == "" {
		return "/"
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Path == "" {
		return "/"
	}
	return parsed.Path
}

// Round1 rounds to one decimal place, the precision used for every
// percentage and average the rollup persists.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}
