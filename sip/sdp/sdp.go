// Package sdp implements the SDP codec and offer/answer helpers of
// SPEC_FULL §4.2/§6.3, built on top of github.com/pion/sdp/v3 for the
// grammar-level parse/marshal (the same library arzzra-soft_phone and
// sebacius-switchboard use for this exact purpose).
package sdp

import (
	"fmt"
	"strconv"
	"strings"

	pionsdp "github.com/pion/sdp/v3"
)

// Origin is the "o=" line (RFC 4566 §5.2).
type Origin struct {
	Username       string
	SessionID      uint64
	SessionVersion uint64
	NetType        string
	AddrType       string
	Address        string
}

// Codec is one "a=rtpmap" payload definition, optionally paired with an
// "a=fmtp" line.
type Codec struct {
	PayloadType uint8
	Name        string
	ClockRate   uint32
	Fmtp        string
	PTime       int // milliseconds, 0 if unset
}

func (c Codec) rtpmap() string {
	return fmt.Sprintf("%d %s/%d", c.PayloadType, c.Name, c.ClockRate)
}

// Media is one "m=" section.
type Media struct {
	Media      string // "audio", "video", ...
	Port       int    // 0 denotes a rejected stream (SPEC_FULL §3)
	Protocol   string // default "RTP/AVP"
	Codecs     []Codec
	Attributes []string // raw "a=" lines other than rtpmap/fmtp/inactive, e.g. "sendrecv" or "ptime:20"
	Connection string   // optional per-media connection override, "" if absent
	Inactive   bool
}

func (m Media) formats() []string {
	out := make([]string, len(m.Codecs))
	for i, c := range m.Codecs {
		out[i] = strconv.Itoa(int(c.PayloadType))
	}
	return out
}

// Session is a parsed or constructed SDP session description
// (RFC 4566 §5), SPEC_FULL §3's "SDP body".
type Session struct {
	Origin             Origin
	SessionName        string
	ConnectionAddress  string // "c=" address at session level, "" if absent
	Media              []Media
	SessionAttributes  []string
}

// Parse decodes raw SDP bytes into a Session, failing with the
// underlying grammar parser's error wrapped under an "sdp: malformed
// sdp" prefix.
func Parse(body []byte) (*Session, error) {
	var raw pionsdp.SessionDescription
	if err := raw.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("sdp: malformed sdp: %w", err)
	}
	s := &Session{
		Origin: Origin{
			Username:       raw.Origin.Username,
			SessionID:      raw.Origin.SessionID,
			SessionVersion: raw.Origin.SessionVersion,
			NetType:        raw.Origin.NetworkType,
			AddrType:       raw.Origin.AddressType,
			Address:        raw.Origin.UnicastAddress,
		},
		SessionName: string(raw.SessionName),
	}
	if raw.ConnectionInformation != nil && raw.ConnectionInformation.Address != nil {
		s.ConnectionAddress = raw.ConnectionInformation.Address.Address
	}
	for _, a := range raw.Attributes {
		s.SessionAttributes = append(s.SessionAttributes, attrString(a))
	}
	for _, md := range raw.MediaDescriptions {
		media := Media{
			Media:    md.MediaName.Media,
			Port:     md.MediaName.Port.Value,
			Protocol: strings.Join(md.MediaName.Protos, "/"),
		}
		if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
			media.Connection = md.ConnectionInformation.Address.Address
		}
		rtpmaps := map[string]Codec{}
		fmtps := map[string]string{}
		for _, a := range md.Attributes {
			switch a.Key {
			case "rtpmap":
				pt, c := parseRtpmap(a.Value)
				rtpmaps[pt] = c
			case "fmtp":
				parts := strings.SplitN(a.Value, " ", 2)
				if len(parts) == 2 {
					fmtps[parts[0]] = parts[1]
				}
			case "inactive":
				media.Inactive = true
			default:
				media.Attributes = append(media.Attributes, attrString(a))
			}
		}
		for _, pt := range md.MediaName.Formats {
			if c, ok := rtpmaps[pt]; ok {
				c.Fmtp = fmtps[pt]
				media.Codecs = append(media.Codecs, c)
				continue
			}
			n, _ := strconv.Atoi(pt)
			media.Codecs = append(media.Codecs, Codec{PayloadType: uint8(n)})
		}
		s.Media = append(s.Media, media)
	}
	return s, nil
}

func attrString(a pionsdp.Attribute) string {
	if a.Value == "" {
		return a.Key
	}
	return a.Key + ":" + a.Value
}

func parseRtpmap(v string) (string, Codec) {
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return parts[0], Codec{}
	}
	pt := parts[0]
	ptn, _ := strconv.Atoi(pt)
	nameRate := strings.SplitN(parts[1], "/", 2)
	c := Codec{PayloadType: uint8(ptn), Name: nameRate[0]}
	if len(nameRate) == 2 {
		if rate, err := strconv.ParseUint(nameRate[1], 10, 32); err == nil {
			c.ClockRate = uint32(rate)
		}
	}
	return pt, c
}

// Marshal serializes the Session back to SDP wire bytes via the
// underlying grammar library.
func (s *Session) Marshal() []byte {
	raw := &pionsdp.SessionDescription{
		Version: 0,
		Origin: pionsdp.Origin{
			Username:       s.Origin.Username,
			SessionID:      s.Origin.SessionID,
			SessionVersion: s.Origin.SessionVersion,
			NetworkType:    s.Origin.NetType,
			AddressType:    s.Origin.AddrType,
			UnicastAddress: s.Origin.Address,
		},
		SessionName: pionsdp.SessionName(s.SessionName),
		TimeDescriptions: []pionsdp.TimeDescription{
			{Timing: pionsdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}
	if s.ConnectionAddress != "" {
		raw.ConnectionInformation = &pionsdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &pionsdp.Address{Address: s.ConnectionAddress},
		}
	}
	for _, a := range s.SessionAttributes {
		raw.Attributes = append(raw.Attributes, parseAttrLine(a))
	}
	for _, m := range s.Media {
		md := &pionsdp.MediaDescription{
			MediaName: pionsdp.MediaName{
				Media:   m.Media,
				Port:    pionsdp.RangedPort{Value: m.Port},
				Protos:  strings.Split(orDefault(m.Protocol, "RTP/AVP"), "/"),
				Formats: m.formats(),
			},
		}
		if m.Connection != "" {
			md.ConnectionInformation = &pionsdp.ConnectionInformation{
				NetworkType: "IN", AddressType: "IP4",
				Address: &pionsdp.Address{Address: m.Connection},
			}
		}
		for _, c := range m.Codecs {
			md.Attributes = append(md.Attributes, pionsdp.Attribute{Key: "rtpmap", Value: c.rtpmap()})
			if c.Fmtp != "" {
				md.Attributes = append(md.Attributes, pionsdp.Attribute{
					Key: "fmtp", Value: fmt.Sprintf("%d %s", c.PayloadType, c.Fmtp),
				})
			}
			if c.PTime > 0 {
				md.Attributes = append(md.Attributes, pionsdp.Attribute{Key: "ptime", Value: strconv.Itoa(c.PTime)})
			}
		}
		if m.Inactive {
			md.Attributes = append(md.Attributes, pionsdp.Attribute{Key: "inactive"})
		}
		for _, a := range m.Attributes {
			md.Attributes = append(md.Attributes, parseAttrLine(a))
		}
		raw.MediaDescriptions = append(raw.MediaDescriptions, md)
	}
	out, _ := raw.Marshal()
	return out
}

func parseAttrLine(a string) pionsdp.Attribute {
	if idx := strings.IndexByte(a, ':'); idx >= 0 {
		return pionsdp.Attribute{Key: a[:idx], Value: a[idx+1:]}
	}
	return pionsdp.Attribute{Key: a}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// CodecSummary returns the distinct codec names across all media
// sections, in first-seen order (SPEC_FULL §4.2).
func (s *Session) CodecSummary() []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range s.Media {
		for _, c := range m.Codecs {
			if c.Name != "" && !seen[c.Name] {
				seen[c.Name] = true
				out = append(out, c.Name)
			}
		}
	}
	return out
}

// HasEarlyMedia reports whether any media line is active (port > 0, not
// marked inactive).
func (s *Session) HasEarlyMedia() bool {
	for _, m := range s.Media {
		if m.Port > 0 && !m.Inactive {
			return true
		}
	}
	return false
}

// MediaRejected reports whether every media line has port == 0
// (SPEC_FULL §3/§8 boundary behavior).
func (s *Session) MediaRejected() bool {
	if len(s.Media) == 0 {
		return false
	}
	for _, m := range s.Media {
		if m.Port != 0 {
			return false
		}
	}
	return true
}
