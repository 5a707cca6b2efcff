package plan

import (
	"errors"
	"fmt"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

var (
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition matches every *TransitionError.
	ErrInvalidTransition = errors.New("invalid approval transition")
	// ErrDuplicatePlan matches every *DuplicateError.
	ErrDuplicatePlan = errors.New("duplicate plan id")
)

// NotFoundError reports an unknown plan, or an unknown trainset within a known plan.
type NotFoundError struct {
	PlanID     string
	TrainsetID string
}

func (e *NotFoundError) Error() string {
	switch {
	case e.TrainsetID != "":
		return fmt.Sprintf("trainset %s not found in plan %s", e.TrainsetID, e.PlanID)
	case e.PlanID != "":
		return fmt.Sprintf("plan %s not found", e.PlanID)
	default:
		return "no current plan"
	}
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (e *NotFoundError) FormatStderr() string {
	return fmt.Sprintf("error: %s\n", e.Error())
}

// DuplicateError reports a plan id that is already stored. Two plans generated for the same
// planning instant share an id, and the second one is refused rather than replacing the first.
type DuplicateError struct {
	PlanID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("plan %s already exists", e.PlanID)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicatePlan
}

func (e *DuplicateError) FormatStderr() string {
	return fmt.Sprintf("error: plan %s already exists; plan for a different instant\n", e.PlanID)
}

// TransitionError reports an approval status change the state machine does not allow.
type TransitionError struct {
	PlanID string
	From   model.ApprovalStatus
	To     model.ApprovalStatus
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("plan %s: %v", e.PlanID, e.Err)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

func (e *TransitionError) FormatStderr() string {
	return fmt.Sprintf("error: plan %s is %s and cannot become %s\n", e.PlanID, e.From, e.To)
}

func transition(p *model.InductionPlan, to model.ApprovalStatus) error {
	if err := model.ValidateApprovalTransition(p.ApprovalStatus, to); err != nil {
		return &TransitionError{PlanID: p.ID, From: p.ApprovalStatus, To: to, Err: err}
	}
	p.ApprovalStatus = to
	return nil
}
