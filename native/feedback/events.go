package feedback

import (
	"strconv"

	"buildledger/core/types"
	"buildledger/crypto"
)

const (
	// EventTypeReviewSubmitted is emitted when a participant reviews a
	// settled service.
	EventTypeReviewSubmitted = "feedback.reviewSubmitted"
	// EventTypeContractorRegistered is emitted on a successful identity claim.
	EventTypeContractorRegistered = "feedback.contractorRegistered"
)

// NewReviewSubmittedEvent returns the canonical payload for a recorded review.
func NewReviewSubmittedEvent(r *Review) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: EventTypeReviewSubmitted, Attributes: attrs}
	}
	attrs["serviceId"] = strconv.FormatUint(r.ServiceID, 10)
	attrs["reviewer"] = crypto.NewAddress(r.Reviewer).String()
	attrs["reviewee"] = crypto.NewAddress(r.Reviewee).String()
	attrs["rating"] = strconv.FormatUint(uint64(r.Rating), 10)
	attrs["isClient"] = strconv.FormatBool(r.IsClient)
	return &types.Event{Type: EventTypeReviewSubmitted, Attributes: attrs}
}

// NewContractorRegisteredEvent returns the canonical payload for an identity
// claim.
func NewContractorRegisteredEvent(p *ContractorProfile) *types.Event {
	attrs := make(map[string]string)
	if p == nil {
		return &types.Event{Type: EventTypeContractorRegistered, Attributes: attrs}
	}
	attrs["contractor"] = crypto.NewAddress(p.Address).String()
	attrs["name"] = p.Name
	return &types.Event{Type: EventTypeContractorRegistered, Attributes: attrs}
}
