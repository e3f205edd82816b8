package detector

import (
	"time"

	"github.com/goquant/arbsentinel/internal/domain"
)

// history is a bounded ring of closed opportunities. Callers synchronize
// access; the Detector holds it under its own mutex.
type history struct {
	buf  []domain.ClosedOpportunity
	next int
	size int
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = 1000
	}
	return &history{buf: make([]domain.ClosedOpportunity, capacity)}
}

func (h *history) add(opp domain.ClosedOpportunity) {
	h.buf[h.next] = opp
	h.next = (h.next + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
}

// recent returns up to limit entries, newest first.
func (h *history) recent(limit int) []domain.ClosedOpportunity {
	if limit <= 0 || limit > h.size {
		limit = h.size
	}
	out := make([]domain.ClosedOpportunity, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + len(h.buf)) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}

func (h *history) stats() domain.OpportunityStats {
	stats := domain.OpportunityStats{Count: h.size}
	if h.size == 0 {
		return stats
	}

	var pctSum float64
	var durSum time.Duration
	for i := 1; i <= h.size; i++ {
		idx := (h.next - i + len(h.buf)) % len(h.buf)
		opp := h.buf[idx]
		pctSum += opp.ProfitPct
		durSum += opp.ClosedAt.Sub(opp.DetectedAt)
		if opp.ProfitPct > stats.MaxProfitPct {
			stats.MaxProfitPct = opp.ProfitPct
		}
	}
	stats.AvgProfitPct = pctSum / float64(h.size)
	stats.AvgDuration = durSum / time.Duration(h.size)
	return stats
}
