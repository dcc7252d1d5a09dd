package sorting

import (
	"sort"

	"companioncare/pkg/models"
)

// Display ordering: actionable items first. Statuses outside the map share the
// lowest rank and keep their relative order.
var statusRank = map[models.Status]int{
	models.StatusPending:    0,
	models.StatusAccepted:   1,
	models.StatusInProgress: 2,
}

func rankOf(s models.Status) int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return len(statusRank)
}

// Services sorts in place: pending before accepted before in_progress before
// everything else, and within a rank by sort key descending (soonest scheduled
// first). The sort is stable, so equal keys preserve input order.
func Services(requests []*models.ServiceRequest) {
	sort.SliceStable(requests, func(i, j int) bool {
		ri, rj := rankOf(requests[i].Status), rankOf(requests[j].Status)
		if ri != rj {
			return ri < rj
		}
		return requests[i].SortKey() > requests[j].SortKey()
	})
}

var claimRank = map[models.ClaimStatus]int{
	models.ClaimOpen:     0,
	models.ClaimResolved: 1,
	models.ClaimRejected: 2,
	models.ClaimDeleted:  3,
}

func claimRankOf(s models.ClaimStatus) int {
	if r, ok := claimRank[s]; ok {
		return r
	}
	return len(claimRank)
}

// Claims sorts in place: open first, then resolved, rejected, deleted, and
// within a rank by creation time descending.
func Claims(claims []*models.Claim) {
	sort.SliceStable(claims, func(i, j int) bool {
		ri, rj := claimRankOf(claims[i].Status), claimRankOf(claims[j].Status)
		if ri != rj {
			return ri < rj
		}
		return claims[i].CreatedAt.After(claims[j].CreatedAt)
	})
}
