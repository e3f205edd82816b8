package alert

import "github.com/goquant/arbsentinel/internal/domain"

// historyRing is a fixed-capacity record of delivered alerts. Oldest entries
// are overwritten once the ring fills.
type historyRing struct {
	buf  []domain.AlertRecord
	next int
	size int
}

func newHistoryRing(capacity int) *historyRing {
	return &historyRing{buf: make([]domain.AlertRecord, capacity)}
}

func (r *historyRing) add(rec domain.AlertRecord) {
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// recent returns up to limit records, newest first.
func (r *historyRing) recent(limit int) []domain.AlertRecord {
	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]domain.AlertRecord, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}
