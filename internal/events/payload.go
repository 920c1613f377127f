package events

import (
	"encoding/json"
	"strconv"
	"strings"
)

// GeoPayload is the optional client-reported position inside a payload.
type GeoPayload struct {
	Lat     float64 `json:"lat"`
	Long    float64 `json:"long"`
	Country string  `json:"country"`
	City    string  `json:"city"`
}

// Payload is the typed view of a RawEvent's payload. Known fields are parsed
// leniently (a malformed field is dropped, not fatal); everything else lands
// in Extra so no ingested data is lost.
type Payload struct {
	URL        string
	Title      string
	Referrer   string
	UserAgent  string
	DeviceType string
	Screen     string
	Language   string
	ClientIP   string

	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMTerm     string
	UTMContent  string

	Geo *GeoPayload

	LoadEventMs  *float64
	DownlinkMbps *float64
	RTTMs        *float64

	// Click / scroll fields
	Page  string
	X     *float64
	Y     *float64
	Depth *float64

	IsNewVisitor       bool
	IsReturningVisitor bool

	Extra map[string]json.RawMessage
}

// ParsePayload decodes a raw payload JSON string. An empty string yields an
// empty payload; invalid JSON is an error (the whole event is then skipped).
func ParsePayload(raw string) (Payload, error) {
	var p Payload
	if raw == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// HasUTM reports whether the payload carries any utm_* parameter, including
// unknown ones kept in Extra.
func (p *Payload) HasUTM() bool {
	if p.UTMSource != "" || p.UTMMedium != "" || p.UTMCampaign != "" ||
		p.UTMTerm != "" || p.UTMContent != "" {
		return true
	}
	for key := range p.Extra {
		if strings.HasPrefix(key, "utm_") {
			return true
		}
	}
	return false
}

// UnmarshalJSON maps known payload keys onto typed fields and collects the
// rest into Extra. Per-field decode failures drop the field only.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for key, val := range raw {
		switch key {
		case "url":
			p.URL = asString(val)
		case "title":
			p.Title = asString(val)
		case "referrer":
			p.Referrer = asString(val)
		case "user_agent":
			p.UserAgent = asString(val)
		case "device_type":
			p.DeviceType = asString(val)
		case "screen":
			p.Screen = asString(val)
		case "language":
			p.Language = asString(val)
		case "ip":
			p.ClientIP = asString(val)
		case "utm_source":
			p.UTMSource = asString(val)
		case "utm_medium":
			p.UTMMedium = asString(val)
		case "utm_campaign":
			p.UTMCampaign = asString(val)
		case "utm_term":
			p.UTMTerm = asString(val)
		case "utm_content":
			p.UTMContent = asString(val)
		case "geo":
			var g GeoPayload
			if err := json.Unmarshal(val, &g); err == nil {
				p.Geo = &g
			}
		case "load_event":
			p.LoadEventMs = asFloat(val)
		case "downlink_mbps":
			p.DownlinkMbps = asFloat(val)
		case "rtt_ms":
			p.RTTMs = asFloat(val)
		case "page":
			p.Page = asString(val)
		case "x":
			p.X = asFloat(val)
		case "y":
			p.Y = asFloat(val)
		case "depth":
			p.Depth = asFloat(val)
		case "is_new_visitor":
			p.IsNewVisitor = asBool(val)
		case "is_returning_visitor":
			p.IsReturningVisitor = asBool(val)
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]json.RawMessage)
			}
			p.Extra[key] = val
		}
	}
	return nil
}

// MarshalJSON emits known fields under their wire names plus Extra, omitting
// zero values so round-tripped payloads stay compact.
func (p Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+8)
	for key, val := range p.Extra {
		out[key] = val
	}

	putString := func(key, val string) {
		if val != "" {
			out[key] = val
		}
	}
	putFloat := func(key string, val *float64) {
		if val != nil {
			out[key] = *val
		}
	}

	putString("url", p.URL)
	putString("title", p.Title)
	putString("referrer", p.Referrer)
	putString("user_agent", p.UserAgent)
	putString("device_type", p.DeviceType)
	putString("screen", p.Screen)
	putString("language", p.Language)
	putString("ip", p.ClientIP)
	putString("utm_source", p.UTMSource)
	putString("utm_medium", p.UTMMedium)
	putString("utm_campaign", p.UTMCampaign)
	putString("utm_term", p.UTMTerm)
	putString("utm_content", p.UTMContent)
	putString("page", p.Page)
	putFloat("load_event", p.LoadEventMs)
	putFloat("downlink_mbps", p.DownlinkMbps)
	putFloat("rtt_ms", p.RTTMs)
	putFloat("x", p.X)
	putFloat("y", p.Y)
	putFloat("depth", p.Depth)
	if p.Geo != nil {
		out["geo"] = p.Geo
	}
	if p.IsNewVisitor {
		out["is_new_visitor"] = true
	}
	if p.IsReturningVisitor {
		out["is_returning_visitor"] = true
	}

	return json.Marshal(out)
}

func asString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// asFloat accepts JSON numbers and numeric strings, anything else is nil.
func asFloat(raw json.RawMessage) *float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &parsed
		}
	}
	return nil
}

func asBool(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	return false
}
