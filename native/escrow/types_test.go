package escrow

import (
	"math/big"
	"testing"
)

func validService() *Service {
	return &Service{
		ID:             7,
		Client:         newTestAddress(0x01),
		Contractor:     newTestAddress(0x02),
		TotalAmount:    big.NewInt(5),
		ReleasedAmount: big.NewInt(0),
		Status:         ServiceStatusCreated,
		ServiceType:    ServiceTypeElectrical,
		Milestones: []*Milestone{
			{ServiceID: 7, Index: 0, Amount: big.NewInt(2)},
			{ServiceID: 7, Index: 1, Amount: big.NewInt(3)},
		},
	}
}

func TestSanitizeServiceAcceptsValid(t *testing.T) {
	sanitized, err := SanitizeService(validService())
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.MilestoneCount() != 2 {
		t.Fatalf("milestone count: %d", sanitized.MilestoneCount())
	}
}

func TestSanitizeServiceRejectsBadRecords(t *testing.T) {
	cases := map[string]func(*Service){
		"sum mismatch":     func(s *Service) { s.Milestones[0].Amount = big.NewInt(1) },
		"self dealing":     func(s *Service) { s.Contractor = s.Client },
		"no milestones":    func(s *Service) { s.Milestones = nil },
		"released > total": func(s *Service) { s.ReleasedAmount = big.NewInt(6) },
		"zero total":       func(s *Service) { s.TotalAmount = big.NewInt(0); s.Milestones = s.Milestones[:0] },
		"index mismatch":   func(s *Service) { s.Milestones[1].Index = 5 },
		"bad status":       func(s *Service) { s.Status = ServiceStatus(42) },
		"bad type":         func(s *Service) { s.ServiceType = ServiceType(42) },
	}
	for name, mutate := range cases {
		svc := validService()
		mutate(svc)
		if _, err := SanitizeService(svc); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	svc := validService()
	clone := svc.Clone()
	clone.TotalAmount.SetInt64(99)
	clone.Milestones[0].Amount.SetInt64(99)
	if svc.TotalAmount.Int64() != 5 || svc.Milestones[0].Amount.Int64() != 2 {
		t.Fatal("clone aliases original amounts")
	}
}

func TestParseServiceType(t *testing.T) {
	st, err := ParseServiceType("hvac")
	if err != nil || st != ServiceTypeHVAC {
		t.Fatalf("parse hvac: %v %v", st, err)
	}
	if _, err := ParseServiceType("astrology"); err == nil {
		t.Fatal("expected parse failure")
	}
	if ServiceTypeGlassRepair.String() != "glassRepair" {
		t.Fatalf("unexpected name: %s", ServiceTypeGlassRepair)
	}
}

func TestStatusStrings(t *testing.T) {
	if ServiceStatusDisputed.String() != "disputed" {
		t.Fatalf("status name: %s", ServiceStatusDisputed)
	}
	if !ServiceStatusCompleted.Terminal() || !ServiceStatusCancelled.Terminal() {
		t.Fatal("terminal statuses misreported")
	}
	if ServiceStatusInProgress.Terminal() {
		t.Fatal("inProgress is not terminal")
	}
	if MilestoneApproved.String() != "approved" {
		t.Fatalf("milestone name: %s", MilestoneApproved)
	}
}
