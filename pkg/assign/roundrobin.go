package assign

import (
	"crypto/md5"
	"fmt"
	"sort"

	"ticketflow/pkg/geo"
	"ticketflow/pkg/model"
)

// bucket identifies an independent alternation lane. Tickets that differ
// in office, service tier, language or data-change status never disturb
// each other's rotation.
type bucket struct {
	office     string
	vipTier    bool
	language   model.Language
	dataChange bool
}

// RoundRobin alternates assignments between the two least-loaded eligible
// managers per bucket. One instance lives for exactly one batch; it is
// driven from a single goroutine.
type RoundRobin struct {
	lastAssigned map[bucket]string
	counts       map[bucket]int
}

// NewRoundRobin returns an empty rotation state.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{
		lastAssigned: make(map[bucket]string),
		counts:       make(map[bucket]int),
	}
}

func makeBucket(officeName string, t *model.Ticket) bucket {
	lang := t.Language
	if lang == "" {
		lang = model.LangRU
	}
	return bucket{
		office:     officeName,
		vipTier:    t.Segment.IsVIPTier(),
		language:   lang,
		dataChange: t.RequestType == model.DataChange,
	}
}

// tiebreak ranks a manager at the bucket's current position i:
// md5("{id}:{i}") interpreted as a big integer, mod 1e9. Equal workloads
// therefore shuffle deterministically from ticket to ticket.
func tiebreak(managerID string, i int) uint64 {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%d", managerID, i)))
	var r uint64
	for _, b := range sum {
		r = (r*256 + uint64(b)) % 1_000_000_000
	}
	return r
}

// Choose picks a manager from the eligible set for a ticket routed to
// officeName. Returns nil when eligible is empty. Does not touch
// workloads; that is PickManager's job.
func (rr *RoundRobin) Choose(officeName string, t *model.Ticket, eligible []*model.Manager) *model.Manager {
	if len(eligible) == 0 {
		return nil
	}

	key := makeBucket(officeName, t)
	i := rr.counts[key]
	rr.counts[key] = i + 1

	sorted := make([]*model.Manager, len(eligible))
	copy(sorted, eligible)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].Workload != sorted[b].Workload {
			return sorted[a].Workload < sorted[b].Workload
		}
		return tiebreak(sorted[a].ID, i) < tiebreak(sorted[b].ID, i)
	})

	top2 := sorted
	if len(top2) > 2 {
		top2 = top2[:2]
	}

	last, seen := rr.lastAssigned[key]
	var chosen *model.Manager
	switch {
	case !seen || len(top2) == 1:
		chosen = top2[0]
	case top2[0].ID == last:
		chosen = top2[1]
	case top2[1].ID == last:
		chosen = top2[0]
	default:
		chosen = top2[0]
	}

	rr.lastAssigned[key] = chosen.ID
	return chosen
}

// PickManager selects a manager and the final office for a ticket whose
// nearest office is officeName. Spam is never assigned. When the nearest
// office yields no eligible manager the search walks outward through
// neighboring offices by distance. A successful pick increments the
// chosen manager's workload by exactly 1.
func PickManager(t *model.Ticket, officeName string, managers []*model.Manager, idx *geo.OfficeIndex, rr *RoundRobin) (*model.Manager, string) {
	if t.RequestType == model.Spam {
		return nil, officeName
	}

	candidates := Eligible(t, officeName, managers)
	if len(candidates) == 0 {
		for _, other := range idx.SortedByDistance(officeName) {
			if candidates = Eligible(t, other, managers); len(candidates) > 0 {
				officeName = other
				break
			}
		}
	}
	if len(candidates) == 0 {
		return nil, officeName
	}

	chosen := rr.Choose(officeName, t, candidates)
	if chosen == nil {
		return nil, officeName
	}
	chosen.Workload++
	return chosen, officeName
}
