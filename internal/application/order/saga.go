package order

import (
	"context"

	domain "orderflow/internal/domain/order"
	"orderflow/internal/observability"
)

// sagaStep is one local operation of the order saga. Steps that leave
// external state behind declare their inverse alongside, so the unwind path
// is a property of the step table, not of branching in the flow.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// runSteps executes the steps in order. On a step failure every previously
// completed step with a compensation is undone in reverse; the step error is
// then returned as-is. A failed compensation takes precedence over the step
// error, because silently leaking a reservation is the worst outcome.
func (s *Service) runSteps(ctx context.Context, logger observability.Logger, o *domain.Order, steps []sagaStep) error {
	var completed []sagaStep

	for _, step := range steps {
		err := step.run(ctx)
		if err == nil {
			if step.compensate != nil {
				completed = append(completed, step)
			}
			continue
		}

		logger.Warn("saga_step_failed",
			observability.F("step", step.name),
			observability.F("order_id", o.ID),
			observability.F("error", err.Error()),
		)

		if compErr := s.unwind(ctx, logger, o, completed); compErr != nil {
			return E(KindCompensationFailed, o.ID, "compensation failed after "+step.name, compErr)
		}
		return err
	}

	return nil
}

// unwind runs the compensations of the completed steps in reverse order.
// The order is moved through COMPENSATING first so observers can tell an
// in-flight rollback from a plain failure.
func (s *Service) unwind(ctx context.Context, logger observability.Logger, o *domain.Order, completed []sagaStep) error {
	if len(completed) == 0 {
		return nil
	}

	if domain.CanTransition(o.Status, domain.StatusCompensating) {
		if err := o.Advance(domain.StatusCompensating); err == nil {
			if err := s.orders.Update(ctx, o); err != nil {
				logger.Error("saga_compensating_update_failed",
					observability.F("order_id", o.ID),
					observability.F("error", err.Error()),
				)
			}
		}
	}

	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		s.compensations.Add(1, observability.L("step", step.name))

		if err := step.compensate(ctx); err != nil {
			logger.Error("saga_compensation_failed",
				observability.F("step", step.name),
				observability.F("order_id", o.ID),
				observability.F("error", err.Error()),
			)
			return err
		}

		logger.Info("saga_compensated",
			observability.F("step", step.name),
			observability.F("order_id", o.ID),
		)
	}

	return nil
}
