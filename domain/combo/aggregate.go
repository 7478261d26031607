package combo

import "sort"

// Population is the read-only set of user records for one run
type Population struct {
	users []*UserRecord
	index map[string]*UserRecord
}

// AggregateUsers folds observations into one record per user.
// Conversion is OR-ed across rows and outcome counts are summed.
// Rows without a user or entity key are skipped.
func AggregateUsers(observations []Observation) *Population {
	index := make(map[string]*UserRecord)
	for _, obs := range observations {
		if !obs.Valid() {
			continue
		}
		rec, ok := index[obs.UserID]
		if !ok {
			rec = &UserRecord{UserID: obs.UserID, Exposures: make(map[string]int)}
			index[obs.UserID] = rec
		}
		rec.Exposures[obs.EntityID] += obs.ExposureCount
		rec.Converted = rec.Converted || obs.Converted
		rec.OutcomeTotal += obs.OutcomeCount
	}

	users := make([]*UserRecord, 0, len(index))
	for _, rec := range index {
		users = append(users, rec)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })

	return &Population{users: users, index: index}
}

// Size is the number of distinct users
func (p *Population) Size() int {
	return len(p.users)
}

// Users returns records ordered by user id. Callers must not modify them.
func (p *Population) Users() []*UserRecord {
	return p.users
}

// User looks up one record
func (p *Population) User(id string) (*UserRecord, bool) {
	rec, ok := p.index[id]
	return rec, ok
}

// Outcomes returns the binary outcome vector aligned with Users()
func (p *Population) Outcomes() []float64 {
	y := make([]float64, len(p.users))
	for i, u := range p.users {
		if u.Converted {
			y[i] = 1
		}
	}
	return y
}

// Converters counts users with at least one converting row
func (p *Population) Converters() int {
	n := 0
	for _, u := range p.users {
		if u.Converted {
			n++
		}
	}
	return n
}
