// Package provisioning implements the two-phase tenant provisioning sagas:
// the database saga and the identity-realm saga, each with compensating
// rollback, plus the authentication-flow builder the identity saga uses.
package provisioning

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// StepTag names one completed saga step. The orchestrators accumulate tags
// in execution order; rollback consults them to decide what to compensate.
type StepTag string

// Database saga steps.
const (
	StepDatabaseCreated StepTag = "database_created"
	StepUserCreated     StepTag = "user_created"
	StepGrantsApplied   StepTag = "grants_applied"
	StepSchemaApplied   StepTag = "schema_applied"
)

// Identity saga steps.
const (
	StepRealmCreated         StepTag = "realm_created"
	StepClientScopesCreated  StepTag = "client_scopes_created"
	StepWebClientCreated     StepTag = "web_client_created"
	StepMobileClientCreated  StepTag = "mobile_client_created"
	StepServiceClientCreated StepTag = "service_client_created"
	StepRolesCreated         StepTag = "roles_created"
	StepThemeUpdated         StepTag = "theme_updated"
	StepAuthFlowCreated      StepTag = "auth_flow_created"
)

// Saga is the ephemeral per-attempt record of completed steps. It exists for
// the duration of one provisioning call, is never persisted, and is used
// exclusively to decide what to compensate on failure.
type Saga struct {
	name      string
	logger    *zap.Logger
	completed []StepTag
}

// NewSaga starts an empty saga ledger.
func NewSaga(name string, logger *zap.Logger) *Saga {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saga{name: name, logger: logger}
}

// Mark records one completed step.
func (s *Saga) Mark(tag StepTag) {
	s.completed = append(s.completed, tag)
	s.logger.Debug("saga step completed", zap.String("saga", s.name), zap.String("step", string(tag)))
}

// Done reports whether the given step completed.
func (s *Saga) Done(tag StepTag) bool {
	for _, t := range s.completed {
		if t == tag {
			return true
		}
	}
	return false
}

// Steps returns the completed steps in execution order.
func (s *Saga) Steps() []StepTag {
	out := make([]StepTag, len(s.completed))
	copy(out, s.completed)
	return out
}

// Fail wraps the original step error with saga context. Compensation runs
// before Fail is called; its failures are logged by Compensate and never
// mask the cause returned here.
func (s *Saga) Fail(cause error) error {
	return fmt.Errorf("%s saga failed after steps %v: %w", s.name, s.completed, cause)
}

// Compensate runs one named compensation, logging but suppressing its error
// so rollback is best-effort and the original step failure stays visible.
func (s *Saga) Compensate(ctx context.Context, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		s.logger.Error("saga compensation failed",
			zap.String("saga", s.name),
			zap.String("compensation", name),
			zap.Error(err),
		)
	}
}
