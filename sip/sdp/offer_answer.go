package sdp

// DefaultAnswerCodecs is the library default payload set retained by
// CreateAnswer when the caller does not restrict accepted payloads
// (SPEC_FULL §4.2).
var DefaultAnswerCodecs = []Codec{
	{PayloadType: 0, Name: "PCMU", ClockRate: 8000},
	{PayloadType: 8, Name: "PCMA", ClockRate: 8000},
	{PayloadType: 101, Name: "telephone-event", ClockRate: 8000},
}

// MediaSpec describes one media section to offer (SPEC_FULL §4.2).
type MediaSpec struct {
	Media    string // "audio", "video"
	Port     int
	Protocol string // default "RTP/AVP"
	Codecs   []Codec
}

// CreateOffer builds a minimal, valid offer session per SPEC_FULL §6.3.
func CreateOffer(sessionName string, origin Origin, connectionAddr string, media []MediaSpec) *Session {
	s := &Session{
		Origin:            origin,
		SessionName:       orDefault(sessionName, "-"),
		ConnectionAddress: connectionAddr,
	}
	for _, spec := range media {
		s.Media = append(s.Media, Media{
			Media:    spec.Media,
			Port:     spec.Port,
			Protocol: orDefault(spec.Protocol, "RTP/AVP"),
			Codecs:   spec.Codecs,
		})
	}
	return s
}

// CreateAnswer builds an answer session for a received offer, copying
// media-line shape from the offer (one "m=" per offered media, in the
// same order, per RFC 3264 §6) and restricting each media's codec list
// to acceptedPayloads ∩ offered (or DefaultAnswerCodecs ∩ offered when
// acceptedPayloads is nil). A media line whose intersection is empty is
// answered with port 0 (rejected), per SPEC_FULL §4.2/§3.
func CreateAnswer(offer *Session, localOrigin Origin, localConnection string, acceptedPayloads []uint8) *Session {
	accept := acceptedPayloads
	if accept == nil {
		for _, c := range DefaultAnswerCodecs {
			accept = append(accept, c.PayloadType)
		}
	}
	acceptSet := map[uint8]bool{}
	for _, pt := range accept {
		acceptSet[pt] = true
	}

	answer := &Session{
		Origin:            localOrigin,
		SessionName:       offer.SessionName,
		ConnectionAddress: localConnection,
	}
	for _, om := range offer.Media {
		var codecs []Codec
		for _, c := range om.Codecs {
			if acceptSet[c.PayloadType] {
				codecs = append(codecs, c)
			}
		}
		port := om.Port
		if len(codecs) == 0 {
			port = 0
		}
		answer.Media = append(answer.Media, Media{
			Media:    om.Media,
			Port:     port,
			Protocol: om.Protocol,
			Codecs:   codecs,
		})
	}
	return answer
}
