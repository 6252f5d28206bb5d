package escrow

import (
	"math/big"
	"strconv"

	"buildledger/core/types"
	"buildledger/crypto"
)

const (
	EventTypeServiceCreated     = "escrow.serviceCreated"
	EventTypeMilestoneCompleted = "escrow.milestoneCompleted"
	EventTypePaymentReleased    = "escrow.paymentReleased"
	EventTypeServiceCompleted   = "escrow.serviceCompleted"
	EventTypeServiceDisputed    = "escrow.serviceDisputed"
	EventTypeDisputeResolved    = "escrow.disputeResolved"
	EventTypeServiceCancelled   = "escrow.serviceCancelled"
)

// NewServiceCreatedEvent returns the canonical payload for a newly funded
// service agreement.
func NewServiceCreatedEvent(s *Service) *types.Event {
	attrs := serviceAttributes(s)
	if s != nil {
		attrs["milestones"] = strconv.FormatUint(s.MilestoneCount(), 10)
		attrs["serviceType"] = s.ServiceType.String()
		attrs["deadline"] = strconv.FormatInt(s.Deadline, 10)
	}
	return &types.Event{Type: EventTypeServiceCreated, Attributes: attrs}
}

// NewMilestoneCompletedEvent returns the payload emitted when the contractor
// marks a milestone as done. No funds move on this event.
func NewMilestoneCompletedEvent(s *Service, m *Milestone) *types.Event {
	attrs := serviceAttributes(s)
	if m != nil {
		attrs["milestoneIndex"] = strconv.FormatUint(m.Index, 10)
		attrs["milestoneAmount"] = formatAmount(m.Amount)
		attrs["completedAt"] = strconv.FormatInt(m.CompletedAt, 10)
	}
	return &types.Event{Type: EventTypeMilestoneCompleted, Attributes: attrs}
}

// NewPaymentReleasedEvent returns the payload emitted when an approved
// milestone tranche is paid out to the contractor.
func NewPaymentReleasedEvent(s *Service, m *Milestone) *types.Event {
	attrs := serviceAttributes(s)
	if m != nil {
		attrs["milestoneIndex"] = strconv.FormatUint(m.Index, 10)
		attrs["amount"] = formatAmount(m.Amount)
	}
	if s != nil {
		attrs["to"] = crypto.NewAddress(s.Contractor).String()
	}
	return &types.Event{Type: EventTypePaymentReleased, Attributes: attrs}
}

// NewServiceCompletedEvent returns the payload emitted once every milestone
// has been approved. Completion unlocks review submission.
func NewServiceCompletedEvent(s *Service) *types.Event {
	return &types.Event{Type: EventTypeServiceCompleted, Attributes: serviceAttributes(s)}
}

// NewServiceDisputedEvent returns the payload emitted when either party
// freezes the agreement pending external resolution.
func NewServiceDisputedEvent(s *Service, raisedBy [20]byte) *types.Event {
	attrs := serviceAttributes(s)
	attrs["raisedBy"] = crypto.NewAddress(raisedBy).String()
	return &types.Event{Type: EventTypeServiceDisputed, Attributes: attrs}
}

// NewDisputeResolvedEvent returns the payload emitted when the arbiter
// allocates the remaining custody between the parties.
func NewDisputeResolvedEvent(s *Service, contractorShare, clientShare *big.Int) *types.Event {
	attrs := serviceAttributes(s)
	attrs["contractorShare"] = formatAmount(contractorShare)
	attrs["clientShare"] = formatAmount(clientShare)
	return &types.Event{Type: EventTypeDisputeResolved, Attributes: attrs}
}

// NewServiceCancelledEvent returns the payload emitted when the client
// unwinds an agreement before any milestone started.
func NewServiceCancelledEvent(s *Service) *types.Event {
	return &types.Event{Type: EventTypeServiceCancelled, Attributes: serviceAttributes(s)}
}

func serviceAttributes(s *Service) map[string]string {
	attrs := make(map[string]string)
	if s == nil {
		return attrs
	}
	attrs["serviceId"] = strconv.FormatUint(s.ID, 10)
	attrs["client"] = crypto.NewAddress(s.Client).String()
	attrs["contractor"] = crypto.NewAddress(s.Contractor).String()
	attrs["amount"] = formatAmount(s.TotalAmount)
	attrs["released"] = formatAmount(s.ReleasedAmount)
	attrs["status"] = s.Status.String()
	return attrs
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
