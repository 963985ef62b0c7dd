package assignment

import (
	"lead-routing/internal/features/pipeline"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EligiblePool applies shift filtering to the active members of a stage, keeping listed order.
//
// Members whose affinity equals shift come first in priority, then members with
// no affinity, then every active member. A zero shift skips filtering.
func EligiblePool(stage *pipeline.Stage, shift primitive.ObjectID) []string {
	active := stage.ActiveMembers()
	if len(active) == 0 {
		return nil
	}

	if !shift.IsZero() {
		var exact, unbound []string
		for _, m := range active {
			switch {
			case m.Shift == nil:
				unbound = append(unbound, m.User)
			case *m.Shift == shift:
				exact = append(exact, m.User)
			}
		}
		if len(exact) > 0 {
			return exact
		}
		if len(unbound) > 0 {
			return unbound
		}
	}

	users := make([]string, len(active))
	for i, m := range active {
		users[i] = m.User
	}
	return users
}

// LeastLoaded returns the first user in pool with the minimum count. Missing counts are 0.
func LeastLoaded(pool []string, counts map[string]int) string {
	best := ""
	bestLoad := 0
	for i, u := range pool {
		load := counts[u]
		if i == 0 || load < bestLoad {
			best, bestLoad = u, load
		}
	}
	return best
}
