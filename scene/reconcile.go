package scene

import "github.com/zlnvch/canvasverse/models"

// Reconcile merges two divergent element sets into one. Elements present
// in only one input pass through unchanged. For elements present in both
// (matched by Id) the strictly higher Version wins; on equal version the
// remote element wins, so repeated application converges toward the
// server-observed state instead of echoing stale local copies.
//
// Output order is local insertion order, followed by remote-only
// elements in remote order. Cost is O(n+m).
func Reconcile(local []models.Element, remote []models.Element) []models.Element {
	merged := make([]models.Element, len(local))
	index := make(map[string]int, len(local))
	for i, el := range local {
		merged[i] = el
		index[el.Id] = i
	}

	for _, rem := range remote {
		i, ok := index[rem.Id]
		if !ok {
			index[rem.Id] = len(merged)
			merged = append(merged, rem)
			continue
		}
		if rem.Version >= merged[i].Version {
			merged[i] = rem
		}
	}

	return merged
}
