package model

import "fmt"

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalModified ApprovalStatus = "modified"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

var terminalApprovalStatuses = map[ApprovalStatus]bool{
	ApprovalApproved: true,
	ApprovalRejected: true,
}

// Plan approval transitions: pending → modified (override, repeatable) → approved|rejected
var validApprovalTransitions = map[ApprovalStatus]map[ApprovalStatus]bool{
	ApprovalPending: {
		ApprovalModified: true,
		ApprovalApproved: true,
		ApprovalRejected: true,
	},
	ApprovalModified: {
		ApprovalModified: true, // further overrides
		ApprovalApproved: true,
		ApprovalRejected: true,
	},
}

func IsApprovalTerminal(s ApprovalStatus) bool {
	return terminalApprovalStatuses[s]
}

func ValidateApprovalTransition(from, to ApprovalStatus) error {
	if IsApprovalTerminal(from) {
		return fmt.Errorf("cannot transition from terminal approval status %q", from)
	}
	allowed, ok := validApprovalTransitions[from]
	if !ok {
		return fmt.Errorf("unknown approval status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid approval transition: %q → %q", from, to)
	}
	return nil
}
