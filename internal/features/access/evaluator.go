package access

import (
	"context"
	"sync"

	"lead-routing/internal/common/models"
	"lead-routing/internal/config"
	"lead-routing/internal/features/pipeline"
)

// Evaluator contributes grants for a caller. Register new rules instead of
// special-casing them in the service.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, caller models.Caller) ([]Grant, error)
}

type Registry struct {
	mu         sync.RWMutex
	evaluators []Evaluator
}

func NewRegistry() *Registry {
	return &Registry{}
}

// NewDefaultRegistry registers the standard-role and department evaluators.
func NewDefaultRegistry(cfg *config.Config, provider pipeline.RegistryProvider) *Registry {
	r := NewRegistry()
	r.Register(&StandardRoleEvaluator{Roles: cfg.Routing.StandardRoles})
	r.Register(&DepartmentEvaluator{Pipeline: provider})
	return r
}

func (r *Registry) Register(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators = append(r.evaluators, e)
}

// Grants runs every evaluator. Any evaluator error fails the whole call.
func (r *Registry) Grants(ctx context.Context, caller models.Caller) ([]Grant, error) {
	r.mu.RLock()
	evaluators := append([]Evaluator(nil), r.evaluators...)
	r.mu.RUnlock()

	var grants []Grant
	for _, e := range evaluators {
		g, err := e.Evaluate(ctx, caller)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g...)
	}
	return grants, nil
}

// StandardRoleEvaluator grants StandardRole for each configured role the caller holds.
type StandardRoleEvaluator struct {
	Roles []string
}

func (e *StandardRoleEvaluator) Name() string { return "standard_role" }

func (e *StandardRoleEvaluator) Evaluate(ctx context.Context, caller models.Caller) ([]Grant, error) {
	var grants []Grant
	for _, role := range e.Roles {
		if caller.HasRole(role) {
			grants = append(grants, Grant{Capability: StandardRole, Role: role})
		}
	}
	return grants, nil
}

// DepartmentEvaluator grants department and manager capabilities from the enabled stages.
type DepartmentEvaluator struct {
	Pipeline pipeline.RegistryProvider
}

func (e *DepartmentEvaluator) Name() string { return "department" }

func (e *DepartmentEvaluator) Evaluate(ctx context.Context, caller models.Caller) ([]Grant, error) {
	reg, err := e.Pipeline.Registry(ctx)
	if err != nil {
		return nil, err
	}

	var grants []Grant
	// disabled stages keep their roles so leads left in them stay reachable
	for _, s := range reg.StoredStages() {
		if caller.HasRole(s.ManagerRole) {
			grants = append(grants, Grant{Capability: DepartmentManagerRole, Role: s.ManagerRole, StageID: s.ID})
		}
		if caller.HasRole(s.DepartmentRole) {
			grants = append(grants, Grant{Capability: DepartmentRole, Role: s.DepartmentRole, StageID: s.ID})
		}
	}
	return grants, nil
}
