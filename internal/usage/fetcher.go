package usage

import (
	"context"
	"sort"
	"sync"
)

// Credentials is the per-profile material needed to call the usage endpoint.
type Credentials struct {
	AccessToken string
	AccountID   string
}

// ProfileLimits pairs a profile id with its fetch result. Snapshot is nil and
// Err set when the fetch for that profile failed.
type ProfileLimits struct {
	ID       string
	Snapshot *RateLimitSnapshot
	Err      error
}

// FetchAll fetches limits for every profile concurrently. A failure on one
// profile never affects the others; its entry carries a nil snapshot and the
// error. Results are sorted by profile id.
func (c *Client) FetchAll(ctx context.Context, creds map[string]Credentials) []ProfileLimits {
	results := make([]ProfileLimits, 0, len(creds))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for id, cred := range creds {
		wg.Add(1)
		go func(id string, cred Credentials) {
			defer wg.Done()
			snapshot, err := c.FetchLimits(ctx, cred.AccessToken, cred.AccountID)
			mu.Lock()
			results = append(results, ProfileLimits{ID: id, Snapshot: snapshot, Err: err})
			mu.Unlock()
		}(id, cred)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results
}

// SnapshotMap converts fetch results into the id->snapshot map consumed by
// the aggregation functions. Failed fetches map to nil.
func SnapshotMap(results []ProfileLimits) map[string]*RateLimitSnapshot {
	m := make(map[string]*RateLimitSnapshot, len(results))
	for _, r := range results {
		m[r.ID] = r.Snapshot
	}
	return m
}
