package dialog

import "github.com/oornnery/sipgox/sip"

// BuildRequest constructs an in-dialog request (BYE, re-INVITE, INFO,
// UPDATE, REFER, ...) per SPEC_FULL §4.6: Request-URI is the remote
// target, Route is built from the stored route set in order, From/To
// carry the dialog's tags, and CSeq is the next local sequence number.
// ACK is deliberately NOT buildable here — see BuildAckFor2xx, kept in
// its own file so the two code paths never share logic (R7: ACK to a
// non-2xx belongs to the INVITE transaction with its original branch
// and CSeq, while ACK to a 2xx is this dialog's own fresh transaction).
func (d *Dialog) BuildRequest(method sip.RequestMethod, transport string, localHost string, localPort int) *sip.Request {
	seq := d.localSeq.Add(1)

	req := sip.NewRequest(method, d.RemoteTarget.Clone())
	req.Headers().Add("Via", sip.Via{
		Transport: transport,
		Host:      localHost,
		Port:      localPort,
		Params:    sip.Params{{K: "branch", V: sip.GenerateBranch()}},
	}.String())

	for _, r := range d.RouteSet() {
		req.Headers().Add("Route", r.String())
	}

	from := sip.Address{URI: d.LocalURI.URI, Params: sip.Params{{K: "tag", V: d.LocalTag}}}
	to := sip.Address{URI: d.RemoteURI.URI, Params: sip.Params{{K: "tag", V: d.RemoteTag}}}
	req.Headers().Add("From", from.String())
	req.Headers().Add("To", to.String())
	req.Headers().Add("Call-ID", d.CallID)
	req.Headers().Add("CSeq", sip.CSeq{Seq: seq, Method: method}.String())
	req.Headers().Add("Max-Forwards", "70")
	return req
}
