package state

import (
	"fmt"
	"math/big"

	"buildledger/native/escrow"
)

const nextServiceIDKey = "escrow/nextServiceID"

func serviceKey(id uint64) []byte {
	return []byte(fmt.Sprintf("escrow/service/%020d", id))
}

func clientIndexKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("escrow/index/client/%x", addr))
}

func contractorIndexKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("escrow/index/contractor/%x", addr))
}

type storedMilestone struct {
	Index       uint64
	Description string
	Amount      *big.Int
	Status      uint8
	CompletedAt uint64
}

type storedService struct {
	ID                  uint64
	Client              [20]byte
	Contractor          [20]byte
	TotalAmount         *big.Int
	ReleasedAmount      *big.Int
	Status              uint8
	Description         string
	ServiceType         uint8
	CreatedAt           uint64
	Deadline            uint64
	CompletedMilestones uint64
	Milestones          []storedMilestone
}

func newStoredService(svc *escrow.Service) *storedService {
	stored := &storedService{
		ID:                  svc.ID,
		Client:              svc.Client,
		Contractor:          svc.Contractor,
		TotalAmount:         svc.TotalAmount,
		ReleasedAmount:      svc.ReleasedAmount,
		Status:              uint8(svc.Status),
		Description:         svc.Description,
		ServiceType:         uint8(svc.ServiceType),
		CreatedAt:           clampUnix(svc.CreatedAt),
		Deadline:            clampUnix(svc.Deadline),
		CompletedMilestones: svc.CompletedMilestones,
		Milestones:          make([]storedMilestone, len(svc.Milestones)),
	}
	for i, milestone := range svc.Milestones {
		stored.Milestones[i] = storedMilestone{
			Index:       milestone.Index,
			Description: milestone.Description,
			Amount:      milestone.Amount,
			Status:      uint8(milestone.Status),
			CompletedAt: clampUnix(milestone.CompletedAt),
		}
	}
	return stored
}

func (s *storedService) service() *escrow.Service {
	svc := &escrow.Service{
		ID:                  s.ID,
		Client:              s.Client,
		Contractor:          s.Contractor,
		TotalAmount:         s.TotalAmount,
		ReleasedAmount:      s.ReleasedAmount,
		Status:              escrow.ServiceStatus(s.Status),
		Description:         s.Description,
		ServiceType:         escrow.ServiceType(s.ServiceType),
		CreatedAt:           int64(s.CreatedAt),
		Deadline:            int64(s.Deadline),
		CompletedMilestones: s.CompletedMilestones,
		Milestones:          make([]*escrow.Milestone, len(s.Milestones)),
	}
	for i, milestone := range s.Milestones {
		svc.Milestones[i] = &escrow.Milestone{
			ServiceID:   s.ID,
			Index:       milestone.Index,
			Description: milestone.Description,
			Amount:      milestone.Amount,
			Status:      escrow.MilestoneStatus(milestone.Status),
			CompletedAt: int64(milestone.CompletedAt),
		}
	}
	return svc
}

// ServicePut validates and persists a service record.
func (m *Manager) ServicePut(svc *escrow.Service) error {
	sanitized, err := escrow.SanitizeService(svc)
	if err != nil {
		return err
	}
	return m.write(serviceKey(sanitized.ID), newStoredService(sanitized))
}

// ServiceGet loads the service with the given id. The second return reports
// whether a record exists.
func (m *Manager) ServiceGet(id uint64) (*escrow.Service, bool, error) {
	stored := new(storedService)
	ok, err := m.load(serviceKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.service(), true, nil
}

// NextServiceID allocates the next service identifier, starting at 1.
func (m *Manager) NextServiceID() (uint64, error) {
	unlock := m.locks.lock(nextServiceIDKey)
	defer unlock()

	var next uint64
	ok, err := m.load([]byte(nextServiceIDKey), &next)
	if err != nil {
		return 0, err
	}
	if !ok {
		next = 1
	}
	if err := m.write([]byte(nextServiceIDKey), next+1); err != nil {
		return 0, err
	}
	return next, nil
}

func (m *Manager) indexAppend(key []byte, id uint64) error {
	var ids []uint64
	if _, err := m.load(key, &ids); err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	return m.write(key, ids)
}

// ServiceIndexAppend records the service id under both party indexes so
// per-address listings avoid a full scan.
func (m *Manager) ServiceIndexAppend(client, contractor [20]byte, id uint64) error {
	unlock := m.locks.lock("escrow/index")
	defer unlock()

	if err := m.indexAppend(clientIndexKey(client), id); err != nil {
		return err
	}
	return m.indexAppend(contractorIndexKey(contractor), id)
}

// ClientServices returns the ids of services created by addr, oldest first.
func (m *Manager) ClientServices(addr [20]byte) ([]uint64, error) {
	var ids []uint64
	if _, err := m.load(clientIndexKey(addr), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// ContractorServices returns the ids of services assigned to addr, oldest
// first.
func (m *Manager) ContractorServices(addr [20]byte) ([]uint64, error) {
	var ids []uint64
	if _, err := m.load(contractorIndexKey(addr), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// LockService serializes mutations of a single service.
func (m *Manager) LockService(id uint64) func() {
	return m.locks.lock(fmt.Sprintf("escrow/service/%d", id))
}
