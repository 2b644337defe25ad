package dialog

import (
	"sync"

	"github.com/oornnery/sipgox/sip"
)

// Table keys dialogs by (Call-ID, local-tag, remote-tag), per
// SPEC_FULL §3.
type Table struct {
	mu   sync.RWMutex
	byID map[string]*Dialog
}

func NewTable() *Table {
	return &Table{byID: map[string]*Dialog{}}
}

func (t *Table) Put(d *Dialog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[d.ID] = d
}

// Rekey updates the table entry after a dialog's ID changes (Confirm
// can change the remote tag for a forked early dialog).
func (t *Table) Rekey(oldID string, d *Dialog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, oldID)
	t.byID[d.ID] = d
}

func (t *Table) Get(callID, localTag, remoteTag string) (*Dialog, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.byID[sip.DialogID(callID, localTag, remoteTag)]
	return d, ok
}

func (t *Table) GetByID(id string) (*Dialog, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.byID[id]
	return d, ok
}

func (t *Table) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
}

// All returns every tracked dialog, used for best-effort teardown.
func (t *Table) All() []*Dialog {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Dialog, 0, len(t.byID))
	for _, d := range t.byID {
		out = append(out, d)
	}
	return out
}
