package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"buildledger/core/events"
	"buildledger/core/types"
)

var (
	errNilState   = errors.New("escrow engine: state not configured")
	errNilVault   = errors.New("escrow engine: custody vault not configured")
	errNilArbiter = errors.New("escrow engine: arbiter not configured")
)

// engineState abstracts the subset of state manager functionality required by
// the escrow engine. Mutating operations targeting the same service must be
// linearized by LockService; distinct services proceed in parallel.
type engineState interface {
	ServicePut(*Service) error
	ServiceGet(id uint64) (*Service, bool, error)
	NextServiceID() (uint64, error)
	ServiceIndexAppend(client, contractor [20]byte, id uint64) error
	ClientServices(addr [20]byte) ([]uint64, error)
	ContractorServices(addr [20]byte) ([]uint64, error)
	Transfer(from, to [20]byte, amount *big.Int) error
	LockService(id uint64) func()
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine owns the Service/Milestone state machine and fund custody. All
// transitions validate the caller's role and the current status before any
// value moves; every rejection wraps a typed sentinel from errors.go.
type Engine struct {
	state   engineState
	emitter events.Emitter
	vault   [20]byte
	arbiter [20]byte
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetVault configures the module account that holds funds in custody.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetArbiter configures the address authorised to resolve disputes.
func (e *Engine) SetArbiter(addr [20]byte) { e.arbiter = addr }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) loadService(id uint64) (*Service, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	svc, ok, err := e.state.ServiceGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return svc, nil
}

func (e *Engine) storeService(svc *Service) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.ServicePut(svc)
}

// transfer moves amount between two ledger accounts, failing with
// ErrInsufficientFunds when the source cannot cover it. The move itself is
// atomic in the state backend.
func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("%w: negative transfer", ErrAmountMismatch)
	}
	if err := e.state.Transfer(from, to, amt); err != nil {
		if errors.Is(err, types.ErrInsufficientBalance) {
			return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		return err
	}
	return nil
}

func (e *Engine) ensureVaultConfigured() error {
	if e == nil || e.vault == ([20]byte{}) {
		return errNilVault
	}
	return nil
}

// CreateService funds and persists a new agreement. The client's deposit of
// the full total moves into custody atomically with record creation: when the
// balance is short the call fails with ErrInsufficientFunds and no partial
// Service or Milestone records are left behind.
func (e *Engine) CreateService(client, contractor [20]byte, total *big.Int, milestones []MilestoneDraft, description string, deadline int64, serviceType ServiceType) (*Service, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.ensureVaultConfigured(); err != nil {
		return nil, err
	}
	if client == contractor {
		return nil, fmt.Errorf("%w: client and contractor must differ", ErrNotAuthorized)
	}
	if !serviceType.Valid() {
		return nil, fmt.Errorf("escrow: invalid service type %d", serviceType)
	}
	amt := cloneBigInt(total)
	if amt.Sign() <= 0 {
		return nil, fmt.Errorf("%w: total must be positive", ErrAmountMismatch)
	}
	if len(milestones) == 0 {
		return nil, fmt.Errorf("%w: at least one milestone required", ErrAmountMismatch)
	}
	now := e.now()
	if deadline > 0 && deadline < now {
		return nil, fmt.Errorf("%w: deadline before creation time", ErrInvalidState)
	}
	sum := big.NewInt(0)
	drafts := make([]*Milestone, len(milestones))
	for i, draft := range milestones {
		if draft.Amount == nil || draft.Amount.Sign() <= 0 {
			return nil, fmt.Errorf("%w: milestone %d amount must be positive", ErrAmountMismatch, i)
		}
		sum.Add(sum, draft.Amount)
		drafts[i] = &Milestone{
			Index:       uint64(i),
			Description: draft.Description,
			Amount:      cloneBigInt(draft.Amount),
			Status:      MilestonePending,
		}
	}
	if sum.Cmp(amt) != 0 {
		return nil, fmt.Errorf("%w: milestone sum %s != total %s", ErrAmountMismatch, sum, amt)
	}

	// Custody moves before any record exists: a short balance aborts here
	// with nothing persisted.
	if err := e.transfer(client, e.vault, amt); err != nil {
		return nil, err
	}

	id, err := e.state.NextServiceID()
	if err != nil {
		// Unwind the deposit so the failed creation leaves no trace.
		_ = e.transfer(e.vault, client, amt)
		return nil, err
	}
	svc := &Service{
		ID:             id,
		Client:         client,
		Contractor:     contractor,
		TotalAmount:    amt,
		ReleasedAmount: big.NewInt(0),
		Status:         ServiceStatusCreated,
		Description:    description,
		ServiceType:    serviceType,
		CreatedAt:      now,
		Deadline:       deadline,
		Milestones:     drafts,
	}
	for _, m := range svc.Milestones {
		m.ServiceID = id
	}
	if err := e.storeService(svc); err != nil {
		_ = e.transfer(e.vault, client, amt)
		return nil, err
	}
	if err := e.state.ServiceIndexAppend(client, contractor, id); err != nil {
		return nil, err
	}
	e.emit(NewServiceCreatedEvent(svc))
	return svc.Clone(), nil
}

// StartMilestone transitions a pending milestone into progress. Milestones
// execute strictly in index order: the immediately preceding milestone must
// already be approved. The first start also moves the service in progress.
func (e *Engine) StartMilestone(serviceID, index uint64, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	unlock := e.state.LockService(serviceID)
	defer unlock()

	svc, err := e.loadService(serviceID)
	if err != nil {
		return err
	}
	if caller != svc.Contractor {
		return fmt.Errorf("%w: only the contractor may start milestones", ErrNotAuthorized)
	}
	if svc.Status != ServiceStatusCreated && svc.Status != ServiceStatusInProgress {
		return fmt.Errorf("%w: service %d is %s", ErrInvalidState, serviceID, svc.Status)
	}
	milestone := svc.FindMilestone(index)
	if milestone == nil {
		return fmt.Errorf("%w: service %d index %d", ErrMilestoneNotFound, serviceID, index)
	}
	if milestone.Status != MilestonePending {
		return fmt.Errorf("%w: milestone %d is %s", ErrInvalidState, index, milestone.Status)
	}
	if index > 0 {
		prev := svc.FindMilestone(index - 1)
		if prev == nil || prev.Status != MilestoneApproved {
			return fmt.Errorf("%w: milestone %d awaits approval of milestone %d", ErrOutOfOrder, index, index-1)
		}
	}
	milestone.Status = MilestoneInProgress
	if svc.Status == ServiceStatusCreated {
		svc.Status = ServiceStatusInProgress
	}
	return e.storeService(svc)
}

// CompleteMilestone records that the contractor finished the work. This is a
// unilateral claim and moves no funds: release requires client approval.
func (e *Engine) CompleteMilestone(serviceID, index uint64, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	unlock := e.state.LockService(serviceID)
	defer unlock()

	svc, err := e.loadService(serviceID)
	if err != nil {
		return err
	}
	if caller != svc.Contractor {
		return fmt.Errorf("%w: only the contractor may complete milestones", ErrNotAuthorized)
	}
	if svc.Status != ServiceStatusInProgress {
		return fmt.Errorf("%w: service %d is %s", ErrInvalidState, serviceID, svc.Status)
	}
	milestone := svc.FindMilestone(index)
	if milestone == nil {
		return fmt.Errorf("%w: service %d index %d", ErrMilestoneNotFound, serviceID, index)
	}
	if milestone.Status != MilestoneInProgress {
		return fmt.Errorf("%w: milestone %d is %s", ErrInvalidState, index, milestone.Status)
	}
	milestone.Status = MilestoneCompleted
	milestone.CompletedAt = e.now()
	if err := e.storeService(svc); err != nil {
		return err
	}
	e.emit(NewMilestoneCompletedEvent(svc, milestone))
	return nil
}

// ApproveMilestone releases the tranche for a completed milestone to the
// contractor. Double release is prevented by checking the milestone status
// itself, never a separately tracked flag: a second approval observes
// MilestoneApproved and fails with ErrAlreadyReleased.
func (e *Engine) ApproveMilestone(serviceID, index uint64, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.ensureVaultConfigured(); err != nil {
		return err
	}
	unlock := e.state.LockService(serviceID)
	defer unlock()

	svc, err := e.loadService(serviceID)
	if err != nil {
		return err
	}
	if caller != svc.Client {
		return fmt.Errorf("%w: only the client may approve milestones", ErrNotAuthorized)
	}
	if svc.Status != ServiceStatusInProgress {
		return fmt.Errorf("%w: service %d is %s", ErrInvalidState, serviceID, svc.Status)
	}
	milestone := svc.FindMilestone(index)
	if milestone == nil {
		return fmt.Errorf("%w: service %d index %d", ErrMilestoneNotFound, serviceID, index)
	}
	switch milestone.Status {
	case MilestoneCompleted:
	case MilestoneApproved:
		return fmt.Errorf("%w: milestone %d", ErrAlreadyReleased, index)
	default:
		return fmt.Errorf("%w: milestone %d is %s", ErrInvalidState, index, milestone.Status)
	}

	if err := e.transfer(e.vault, svc.Contractor, milestone.Amount); err != nil {
		return err
	}
	milestone.Status = MilestoneApproved
	svc.ReleasedAmount = new(big.Int).Add(svc.ReleasedAmount, milestone.Amount)
	svc.CompletedMilestones++
	completed := svc.CompletedMilestones == svc.MilestoneCount()
	if completed {
		svc.Status = ServiceStatusCompleted
	}
	if err := e.storeService(svc); err != nil {
		return err
	}
	e.emit(NewPaymentReleasedEvent(svc, milestone))
	if completed {
		e.emit(NewServiceCompletedEvent(svc))
	}
	return nil
}

// RaiseDispute freezes an in-progress agreement pending external resolution.
// Either party may raise it.
func (e *Engine) RaiseDispute(serviceID uint64, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	unlock := e.state.LockService(serviceID)
	defer unlock()

	svc, err := e.loadService(serviceID)
	if err != nil {
		return err
	}
	if caller != svc.Client && caller != svc.Contractor {
		return fmt.Errorf("%w: only a party to the service may dispute", ErrNotAuthorized)
	}
	if svc.Status != ServiceStatusInProgress {
		return fmt.Errorf("%w: service %d is %s", ErrInvalidState, serviceID, svc.Status)
	}
	svc.Status = ServiceStatusDisputed
	if err := e.storeService(svc); err != nil {
		return err
	}
	e.emit(NewServiceDisputedEvent(svc, caller))
	return nil
}

// ResolveDispute allocates the remaining custody between the parties. Only
// the configured arbiter may resolve; the supplied shares must sum exactly to
// the unreleased remainder — already released tranches are never re-touched.
// A full refund cancels the service, any contractor award completes it.
func (e *Engine) ResolveDispute(serviceID uint64, resolver [20]byte, contractorShare, clientShare *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.ensureVaultConfigured(); err != nil {
		return err
	}
	if e.arbiter == ([20]byte{}) {
		return errNilArbiter
	}
	unlock := e.state.LockService(serviceID)
	defer unlock()

	svc, err := e.loadService(serviceID)
	if err != nil {
		return err
	}
	if resolver != e.arbiter {
		return fmt.Errorf("%w: only the arbiter may resolve disputes", ErrNotAuthorized)
	}
	if svc.Status != ServiceStatusDisputed {
		return fmt.Errorf("%w: service %d is %s", ErrInvalidState, serviceID, svc.Status)
	}
	toContractor := cloneBigInt(contractorShare)
	toClient := cloneBigInt(clientShare)
	if toContractor.Sign() < 0 || toClient.Sign() < 0 {
		return fmt.Errorf("%w: shares must be non-negative", ErrAmountMismatch)
	}
	remaining := new(big.Int).Sub(svc.TotalAmount, svc.ReleasedAmount)
	allocated := new(big.Int).Add(toContractor, toClient)
	if allocated.Cmp(remaining) != 0 {
		return fmt.Errorf("%w: allocation %s != remaining %s", ErrAmountMismatch, allocated, remaining)
	}
	if err := e.transfer(e.vault, svc.Contractor, toContractor); err != nil {
		return err
	}
	if err := e.transfer(e.vault, svc.Client, toClient); err != nil {
		return err
	}
	if toContractor.Sign() > 0 {
		svc.Status = ServiceStatusCompleted
	} else {
		svc.Status = ServiceStatusCancelled
	}
	if err := e.storeService(svc); err != nil {
		return err
	}
	e.emit(NewDisputeResolvedEvent(svc, toContractor, toClient))
	return nil
}

// CancelService unwinds an agreement before any milestone has started,
// refunding the full deposit to the client. Once work begins the dispute
// path is the only unwind.
func (e *Engine) CancelService(serviceID uint64, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.ensureVaultConfigured(); err != nil {
		return err
	}
	unlock := e.state.LockService(serviceID)
	defer unlock()

	svc, err := e.loadService(serviceID)
	if err != nil {
		return err
	}
	if caller != svc.Client {
		return fmt.Errorf("%w: only the client may cancel", ErrNotAuthorized)
	}
	if svc.Status != ServiceStatusCreated {
		return fmt.Errorf("%w: service %d is %s", ErrInvalidState, serviceID, svc.Status)
	}
	if err := e.transfer(e.vault, svc.Client, svc.TotalAmount); err != nil {
		return err
	}
	svc.Status = ServiceStatusCancelled
	if err := e.storeService(svc); err != nil {
		return err
	}
	e.emit(NewServiceCancelledEvent(svc))
	return nil
}

// GetService returns a snapshot of the service record.
func (e *Engine) GetService(serviceID uint64) (*Service, error) {
	return e.loadService(serviceID)
}

// GetServiceMilestones returns snapshots of the service's milestone set in
// index order.
func (e *Engine) GetServiceMilestones(serviceID uint64) ([]*Milestone, error) {
	svc, err := e.loadService(serviceID)
	if err != nil {
		return nil, err
	}
	milestones := make([]*Milestone, len(svc.Milestones))
	for i, m := range svc.Milestones {
		milestones[i] = m.Clone()
	}
	return milestones, nil
}

// ClientServices lists the identifiers of services created by the address.
func (e *Engine) ClientServices(addr [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.ClientServices(addr)
}

// ContractorServices lists the identifiers of services assigned to the
// address.
func (e *Engine) ContractorServices(addr [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.ContractorServices(addr)
}
