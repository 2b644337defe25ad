package sip

import (
	"fmt"
	"strings"
)

// DialogID renders the (Call-ID, local-tag, remote-tag) triple used to
// key the dialog table (SPEC_FULL §3). The two tag arguments are always
// passed in (local, remote) order by callers regardless of which side
// originated the dialog; dialog.Table looks a dialog up under exactly
// the order it is given and does not try the reverse one.
func DialogID(callID, localTag, remoteTag string) string {
	return strings.Join([]string{callID, localTag, remoteTag}, "|")
}

// DialogIDFromResponse extracts (Call-ID, From-tag, To-tag) from a
// response received by a UAC, returning an error if any is missing.
func DialogIDFromResponse(res *Response) (callID, fromTag, toTag string, err error) {
	cid, ok := res.CallID()
	if !ok {
		return "", "", "", fmt.Errorf("sip: missing Call-ID header")
	}
	from, ok := res.From()
	if !ok {
		return "", "", "", fmt.Errorf("sip: missing From header")
	}
	fromTag, ok = from.Tag()
	if !ok {
		return "", "", "", fmt.Errorf("sip: missing From tag")
	}
	to, ok := res.To()
	if !ok {
		return "", "", "", fmt.Errorf("sip: missing To header")
	}
	toTag, ok = to.Tag()
	if !ok {
		return "", "", "", fmt.Errorf("sip: missing To tag")
	}
	return cid, fromTag, toTag, nil
}
