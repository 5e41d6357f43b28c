package core

import "sync"

// HistoryRecorder keeps the audit log and the change log. Both are append-only;
// readers receive copies.
type HistoryRecorder struct {
	mu      sync.RWMutex
	audits  []AuditEntry
	changes []ChangeLogEntry
}

// NewHistoryRecorder returns an empty recorder.
func NewHistoryRecorder() *HistoryRecorder {
	return &HistoryRecorder{}
}

// Append adds entries to the logs in order.
func (h *HistoryRecorder) Append(audits []AuditEntry, changes []ChangeLogEntry) {
	if len(audits) == 0 && len(changes) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.audits = append(h.audits, audits...)
	for _, c := range changes {
		h.changes = append(h.changes, cloneChangeEntry(c))
	}
}

// Restore replaces both logs, used when hydrating from a record gateway.
func (h *HistoryRecorder) Restore(audits []AuditEntry, changes []ChangeLogEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.audits = append([]AuditEntry(nil), audits...)
	h.changes = make([]ChangeLogEntry, 0, len(changes))
	for _, c := range changes {
		h.changes = append(h.changes, cloneChangeEntry(c))
	}
}

// AuditLog returns every audit entry in recording order.
func (h *HistoryRecorder) AuditLog() []AuditEntry {
	return h.AuditForItem("")
}

// ChangeLog returns every change-log entry in recording order.
func (h *HistoryRecorder) ChangeLog() []ChangeLogEntry {
	return h.ChangeLogForItem("")
}

// AuditForItem filters the audit log by item id. An empty id matches all.
func (h *HistoryRecorder) AuditForItem(itemID string) []AuditEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]AuditEntry, 0, len(h.audits))
	for _, a := range h.audits {
		if itemID == "" || a.ItemID == itemID {
			out = append(out, a)
		}
	}
	return out
}

// ChangeLogForItem filters the change log by item id. An empty id matches all.
func (h *HistoryRecorder) ChangeLogForItem(itemID string) []ChangeLogEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ChangeLogEntry, 0, len(h.changes))
	for _, c := range h.changes {
		if itemID == "" || c.ItemID == itemID {
			out = append(out, cloneChangeEntry(c))
		}
	}
	return out
}

func cloneChangeEntry(c ChangeLogEntry) ChangeLogEntry {
	if c.Changes != nil {
		c.Changes = append([]FieldChange(nil), c.Changes...)
	}
	return c
}
