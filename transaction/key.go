package transaction

import "github.com/oornnery/sipgox/sip"

// Key identifies a client transaction by the top-Via branch it sent,
// the sent-by it used, and the method the response is matched against
// (SPEC_FULL §4.5: "responses match by top-Via branch + sent-by +
// method"). ACK-to-non-2xx does not get its own key: it is generated
// in-place by the INVITE transaction and never registered in the
// table. CANCEL always owns a distinct non-INVITE transaction because
// it carries its own branch copy but a method of its own.
type Key struct {
	Branch string
	SentBy string
	Method sip.RequestMethod
}

// responseMatchMethod returns the method a response is matched
// against for transaction lookup: a response to an ACK never occurs,
// and CANCEL responses match the CANCEL transaction, not the INVITE.
func responseMatchMethod(cseqMethod sip.RequestMethod) sip.RequestMethod {
	return cseqMethod
}

// KeyFor derives the matching key this client used when it sent req.
func KeyFor(req *sip.Request) Key {
	via, _ := req.Via()
	return Key{
		Branch: mustBranch(via),
		SentBy: via.SentBy(),
		Method: req.Method,
	}
}

// KeyForResponse derives the lookup key for an inbound response: its
// top Via branch/sent-by identify the transaction, its CSeq method
// disambiguates INVITE from the CANCEL that shares the branch-less
// relationship (CANCEL uses the INVITE's branch so this field is what
// separates the two tables' lookups).
func KeyForResponse(res *sip.Response) (Key, bool) {
	via, ok := res.Via()
	if !ok {
		return Key{}, false
	}
	cseq, ok := res.CSeqHeader()
	if !ok {
		return Key{}, false
	}
	branch, _ := via.Branch()
	return Key{Branch: branch, SentBy: via.SentBy(), Method: responseMatchMethod(cseq.Method)}, true
}

func mustBranch(v sip.Via) string {
	b, _ := v.Branch()
	return b
}
