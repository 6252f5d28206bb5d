package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ServiceStatus represents the lifecycle states of a service agreement.
type ServiceStatus uint8

const (
	// ServiceStatusCreated marks agreements that are funded but whose first
	// milestone has not started. Cancellation is only possible here.
	ServiceStatusCreated ServiceStatus = iota
	// ServiceStatusInProgress marks agreements with at least one started
	// milestone.
	ServiceStatusInProgress
	// ServiceStatusCompleted marks agreements whose milestones have all been
	// approved, or disputes settled in the contractor's favour. Terminal.
	ServiceStatusCompleted
	// ServiceStatusDisputed marks agreements frozen pending resolution.
	ServiceStatusDisputed
	// ServiceStatusCancelled marks agreements unwound before work started or
	// disputes settled as a full refund. Terminal.
	ServiceStatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s ServiceStatus) Valid() bool {
	switch s {
	case ServiceStatusCreated, ServiceStatusInProgress, ServiceStatusCompleted, ServiceStatusDisputed, ServiceStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s ServiceStatus) Terminal() bool {
	return s == ServiceStatusCompleted || s == ServiceStatusCancelled
}

// String renders the canonical lowercase status name.
func (s ServiceStatus) String() string {
	switch s {
	case ServiceStatusCreated:
		return "created"
	case ServiceStatusInProgress:
		return "inProgress"
	case ServiceStatusCompleted:
		return "completed"
	case ServiceStatusDisputed:
		return "disputed"
	case ServiceStatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MilestoneStatus represents the state of an individual milestone.
type MilestoneStatus uint8

const (
	// MilestonePending indicates the milestone has not been started.
	MilestonePending MilestoneStatus = iota
	// MilestoneInProgress indicates the contractor is working the milestone.
	MilestoneInProgress
	// MilestoneCompleted indicates work is done and awaiting client approval.
	// No funds move on this transition.
	MilestoneCompleted
	// MilestoneApproved indicates the client approved and the tranche was
	// released to the contractor. Terminal.
	MilestoneApproved
)

// String renders the canonical lowercase milestone status name.
func (s MilestoneStatus) String() string {
	switch s {
	case MilestonePending:
		return "pending"
	case MilestoneInProgress:
		return "inProgress"
	case MilestoneCompleted:
		return "completed"
	case MilestoneApproved:
		return "approved"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ServiceType enumerates the trade categories a service can cover.
type ServiceType uint8

const (
	ServiceTypeGardening ServiceType = iota
	ServiceTypePlumbing
	ServiceTypeElectrical
	ServiceTypeConstruction
	ServiceTypePainting
	ServiceTypeCarpentry
	ServiceTypeRoofing
	ServiceTypeCleaning
	ServiceTypeHVAC
	ServiceTypeLocksmith
	ServiceTypeMasonry
	ServiceTypeFlooring
	ServiceTypeApplianceRepair
	ServiceTypePestControl
	ServiceTypeWelding
	ServiceTypeGlassRepair
)

var serviceTypeNames = [...]string{
	"gardening", "plumbing", "electrical", "construction", "painting",
	"carpentry", "roofing", "cleaning", "hvac", "locksmith", "masonry",
	"flooring", "applianceRepair", "pestControl", "welding", "glassRepair",
}

// Valid reports whether the value maps to a known category.
func (t ServiceType) Valid() bool {
	return int(t) < len(serviceTypeNames)
}

// String renders the canonical category name.
func (t ServiceType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
	return serviceTypeNames[t]
}

// ParseServiceType resolves a category name to its enum value.
func ParseServiceType(name string) (ServiceType, error) {
	trimmed := strings.TrimSpace(name)
	for i, candidate := range serviceTypeNames {
		if strings.EqualFold(candidate, trimmed) {
			return ServiceType(i), nil
		}
	}
	return 0, fmt.Errorf("escrow: unknown service type %q", name)
}

// Milestone captures one payable tranche of a service. Milestones are fixed
// at creation: never reordered, never shared across services.
type Milestone struct {
	ServiceID   uint64
	Index       uint64
	Description string
	Amount      *big.Int
	Status      MilestoneStatus
	CompletedAt int64
}

// Clone returns a deep copy of the milestone.
func (m *Milestone) Clone() *Milestone {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Amount != nil {
		clone.Amount = new(big.Int).Set(m.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Service captures the metadata, custody counters and milestone set of a
// single escrow agreement.
type Service struct {
	ID                  uint64
	Client              [20]byte
	Contractor          [20]byte
	TotalAmount         *big.Int
	ReleasedAmount      *big.Int
	Status              ServiceStatus
	Description         string
	ServiceType         ServiceType
	CreatedAt           int64
	Deadline            int64
	CompletedMilestones uint64
	Milestones          []*Milestone
}

// MilestoneCount reports the number of tranches in the agreement.
func (s *Service) MilestoneCount() uint64 {
	if s == nil {
		return 0
	}
	return uint64(len(s.Milestones))
}

// FindMilestone returns the milestone at index, or nil when out of range.
func (s *Service) FindMilestone(index uint64) *Milestone {
	if s == nil || index >= uint64(len(s.Milestones)) {
		return nil
	}
	return s.Milestones[index]
}

// Clone returns a deep copy of the service so callers can safely mutate the
// copy without affecting the stored instance.
func (s *Service) Clone() *Service {
	if s == nil {
		return nil
	}
	clone := *s
	if s.TotalAmount != nil {
		clone.TotalAmount = new(big.Int).Set(s.TotalAmount)
	} else {
		clone.TotalAmount = big.NewInt(0)
	}
	if s.ReleasedAmount != nil {
		clone.ReleasedAmount = new(big.Int).Set(s.ReleasedAmount)
	} else {
		clone.ReleasedAmount = big.NewInt(0)
	}
	if len(s.Milestones) > 0 {
		clone.Milestones = make([]*Milestone, len(s.Milestones))
		for i, m := range s.Milestones {
			clone.Milestones[i] = m.Clone()
		}
	}
	return &clone
}

// SanitizeService validates structural invariants of a service record prior
// to persistence, returning a cloned instance with non-nil amounts. The
// original value is not mutated.
func SanitizeService(s *Service) (*Service, error) {
	if s == nil {
		return nil, errors.New("escrow: nil service")
	}
	clone := s.Clone()
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid service status %d", clone.Status)
	}
	if !clone.ServiceType.Valid() {
		return nil, fmt.Errorf("escrow: invalid service type %d", clone.ServiceType)
	}
	if clone.Client == clone.Contractor {
		return nil, errors.New("escrow: client and contractor must differ")
	}
	if clone.TotalAmount.Sign() <= 0 {
		return nil, errors.New("escrow: total amount must be positive")
	}
	if clone.ReleasedAmount.Sign() < 0 {
		return nil, errors.New("escrow: released amount must be non-negative")
	}
	if clone.ReleasedAmount.Cmp(clone.TotalAmount) > 0 {
		return nil, errors.New("escrow: released amount exceeds total")
	}
	if len(clone.Milestones) == 0 {
		return nil, errors.New("escrow: at least one milestone required")
	}
	sum := big.NewInt(0)
	for i, m := range clone.Milestones {
		if m == nil {
			return nil, fmt.Errorf("escrow: milestone %d nil", i)
		}
		if m.Amount == nil || m.Amount.Sign() <= 0 {
			return nil, fmt.Errorf("escrow: milestone %d amount must be positive", i)
		}
		if m.Index != uint64(i) {
			return nil, fmt.Errorf("escrow: milestone %d index mismatch", i)
		}
		sum.Add(sum, m.Amount)
	}
	if sum.Cmp(clone.TotalAmount) != 0 {
		return nil, fmt.Errorf("escrow: milestone amounts sum %s != total %s", sum, clone.TotalAmount)
	}
	return clone, nil
}

// MilestoneDraft is the caller-supplied definition of a tranche at service
// creation time.
type MilestoneDraft struct {
	Description string
	Amount      *big.Int
}
