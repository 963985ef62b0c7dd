package pipeline

import (
	"sort"

	"lead-routing/internal/common/routingerr"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type pair struct {
	from, to primitive.ObjectID
}

// Registry is an immutable snapshot of the enabled stages and rules.
// Disabled stages are kept aside so leads already sitting in one can still
// be routed out of it, but they are never offered as a target.
//
// Conflicting stored data does not prevent construction. Stages sharing an
// order and rules sharing a (from, to) pair are recorded in Problems, and
// any query that has to decide between them fails with a configuration error.
type Registry struct {
	stages   []Stage // enabled, ascending order
	byID     map[primitive.ObjectID]int
	retired  map[primitive.ObjectID]Stage
	byOrder  map[int]int // count of enabled stages per order
	rules    map[pair]TransitionRule
	dupRules map[pair]bool
	problems []error
}

// NewRegistry builds a snapshot. Disabled rules are ignored, as are rules
// leading into a disabled or unknown stage.
func NewRegistry(stages []Stage, rules []TransitionRule) *Registry {
	r := &Registry{
		byID:     make(map[primitive.ObjectID]int),
		retired:  make(map[primitive.ObjectID]Stage),
		byOrder:  make(map[int]int),
		rules:    make(map[pair]TransitionRule),
		dupRules: make(map[pair]bool),
	}

	for _, s := range stages {
		if s.Enabled {
			r.stages = append(r.stages, s)
		} else {
			r.retired[s.ID] = s
		}
	}
	sort.SliceStable(r.stages, func(i, j int) bool { return r.stages[i].Order < r.stages[j].Order })

	for i, s := range r.stages {
		r.byID[s.ID] = i
		r.byOrder[s.Order]++
		if r.byOrder[s.Order] == 2 {
			r.problems = append(r.problems, routingerr.Configuration("load pipeline",
				"more than one enabled stage has order %d", s.Order))
		}
	}

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if _, err := r.StoredStage(rule.From); err != nil {
			continue
		}
		if _, ok := r.byID[rule.To]; !ok {
			continue
		}
		k := pair{rule.From, rule.To}
		if _, seen := r.rules[k]; seen {
			if !r.dupRules[k] {
				r.problems = append(r.problems, routingerr.Configuration("load pipeline",
					"duplicate transition rule %s -> %s", r.name(rule.From), r.name(rule.To)))
			}
			r.dupRules[k] = true
			continue
		}
		r.rules[k] = rule
	}

	return r
}

func (r *Registry) name(id primitive.ObjectID) string {
	if i, ok := r.byID[id]; ok {
		return r.stages[i].Name
	}
	if s, ok := r.retired[id]; ok {
		return s.Name
	}
	return id.Hex()
}

// Problems lists configuration errors found in the stored data.
func (r *Registry) Problems() []error {
	return r.problems
}

// Stages returns the enabled stages in pipeline order.
func (r *Registry) Stages() []Stage {
	out := make([]Stage, len(r.stages))
	copy(out, r.stages)
	return out
}

// Stage looks up an enabled stage.
func (r *Registry) Stage(id primitive.ObjectID) (*Stage, error) {
	i, ok := r.byID[id]
	if !ok {
		return nil, routingerr.NotFound("lookup stage", "stage %s is not an enabled pipeline stage", id.Hex())
	}
	s := r.stages[i]
	return &s, nil
}

// StoredStage looks up a stage whether or not it is enabled.
func (r *Registry) StoredStage(id primitive.ObjectID) (*Stage, error) {
	if s, ok := r.retired[id]; ok {
		return &s, nil
	}
	return r.Stage(id)
}

func (r *Registry) ambiguous(op string, order int) error {
	if r.byOrder[order] > 1 {
		return routingerr.Configuration(op, "more than one enabled stage has order %d", order)
	}
	return nil
}

// FirstStage returns the enabled stage with the lowest order.
func (r *Registry) FirstStage() (*Stage, error) {
	if len(r.stages) == 0 {
		return nil, routingerr.Configuration("first stage", "no enabled pipeline stage")
	}
	if err := r.ambiguous("first stage", r.stages[0].Order); err != nil {
		return nil, err
	}
	s := r.stages[0]
	return &s, nil
}

// NextStage returns the enabled stage with the smallest order above the given one.
// The given stage may be disabled. nil, nil when nothing follows it.
func (r *Registry) NextStage(id primitive.ObjectID) (*Stage, error) {
	cur, err := r.orderedStage("next stage", id)
	if err != nil {
		return nil, err
	}
	for _, s := range r.stages {
		if s.Order > cur.Order {
			if err := r.ambiguous("next stage", s.Order); err != nil {
				return nil, err
			}
			return &s, nil
		}
	}
	return nil, nil
}

// PreviousStage returns the enabled stage with the largest order below the given one.
// The given stage may be disabled. nil, nil when nothing precedes it.
func (r *Registry) PreviousStage(id primitive.ObjectID) (*Stage, error) {
	cur, err := r.orderedStage("previous stage", id)
	if err != nil {
		return nil, err
	}
	for i := len(r.stages) - 1; i >= 0; i-- {
		s := r.stages[i]
		if s.Order < cur.Order {
			if err := r.ambiguous("previous stage", s.Order); err != nil {
				return nil, err
			}
			return &s, nil
		}
	}
	return nil, nil
}

func (r *Registry) orderedStage(op string, id primitive.ObjectID) (*Stage, error) {
	cur, err := r.StoredStage(id)
	if err != nil {
		return nil, err
	}
	if !cur.Enabled {
		return cur, nil
	}
	if err := r.ambiguous(op, cur.Order); err != nil {
		return nil, err
	}
	return cur, nil
}

// IsTransitionAllowed is true iff exactly one enabled rule matches the tuple.
func (r *Registry) IsTransitionAllowed(from, to primitive.ObjectID, t TransitionType) bool {
	return r.CheckTransition(from, to, t) == nil
}

// CheckTransition explains why IsTransitionAllowed would be false.
func (r *Registry) CheckTransition(from, to primitive.ObjectID, t TransitionType) error {
	k := pair{from, to}
	if r.dupRules[k] {
		return routingerr.Configuration("check transition",
			"duplicate transition rule %s -> %s", r.name(from), r.name(to))
	}
	rule, ok := r.rules[k]
	if !ok || rule.Type != t {
		return routingerr.InvalidTransition("check transition",
			"no enabled %s rule from %s to %s", t, r.name(from), r.name(to))
	}
	return nil
}

// TransferTargets lists every stage reachable from 'from': rule targets with
// their rule type, then all other enabled stages as ManagerOverride. Sorted by name.
func (r *Registry) TransferTargets(from primitive.ObjectID) ([]TransferTarget, error) {
	if _, err := r.StoredStage(from); err != nil {
		return nil, err
	}

	targets := make([]TransferTarget, 0, len(r.stages))
	for _, s := range r.stages {
		if s.ID == from {
			continue
		}
		k := pair{from, s.ID}
		if r.dupRules[k] {
			return nil, routingerr.Configuration("transfer targets",
				"duplicate transition rule %s -> %s", r.name(from), s.Name)
		}
		t := ManagerOverride
		if rule, ok := r.rules[k]; ok {
			t = rule.Type
		}
		targets = append(targets, TransferTarget{Stage: s, TransitionType: t})
	}

	sort.SliceStable(targets, func(i, j int) bool { return targets[i].Stage.Name < targets[j].Stage.Name })
	return targets, nil
}

// StagesForRoles returns the stages where roles hold the department or the manager role.
func (r *Registry) StagesForRoles(roles []string) []Stage {
	return r.filter(func(s Stage) bool {
		return hasRole(roles, s.DepartmentRole) || hasRole(roles, s.ManagerRole)
	})
}

// ManagedStages returns the stages where roles hold the manager role.
func (r *Registry) ManagedStages(roles []string) []Stage {
	return r.filter(func(s Stage) bool { return hasRole(roles, s.ManagerRole) })
}

// DepartmentStages returns the stages where roles hold the department role.
func (r *Registry) DepartmentStages(roles []string) []Stage {
	return r.filter(func(s Stage) bool { return hasRole(roles, s.DepartmentRole) })
}

// StoredStages returns the enabled stages in pipeline order followed by the disabled ones.
func (r *Registry) StoredStages() []Stage {
	out := r.Stages()
	retired := make([]Stage, 0, len(r.retired))
	for _, s := range r.retired {
		retired = append(retired, s)
	}
	sort.Slice(retired, func(i, j int) bool {
		if retired[i].Order != retired[j].Order {
			return retired[i].Order < retired[j].Order
		}
		return retired[i].ID.Hex() < retired[j].ID.Hex()
	})
	return append(out, retired...)
}

func (r *Registry) filter(keep func(Stage) bool) []Stage {
	var out []Stage
	for _, s := range r.stages {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func hasRole(roles []string, role string) bool {
	if role == "" {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
