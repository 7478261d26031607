package combo

import "sort"

const (
	DefaultMinUsersPerEntity = 1
	DefaultMaxEntities       = 200
)

// FilterEntities tallies distinct exposed users per entity, keeps entities
// with at least minUsers, and returns the maxEntities most popular.
// Equal counts are ordered by entity id so repeated calls agree.
func FilterEntities(pop *Population, minUsers, maxEntities int) []CandidateEntity {
	if minUsers < 1 {
		minUsers = DefaultMinUsersPerEntity
	}

	counts := make(map[string]int)
	for _, u := range pop.Users() {
		for entity := range u.Exposures {
			counts[entity]++
		}
	}

	candidates := make([]CandidateEntity, 0, len(counts))
	for entity, n := range counts {
		if n < minUsers {
			continue
		}
		candidates = append(candidates, CandidateEntity{EntityID: entity, ExposureUserCount: n})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ExposureUserCount != candidates[j].ExposureUserCount {
			return candidates[i].ExposureUserCount > candidates[j].ExposureUserCount
		}
		return candidates[i].EntityID < candidates[j].EntityID
	})

	if maxEntities > 0 && len(candidates) > maxEntities {
		candidates = candidates[:maxEntities]
	}
	return candidates
}

// EntityIDs projects candidates onto their ids, preserving order
func EntityIDs(candidates []CandidateEntity) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.EntityID
	}
	return ids
}
