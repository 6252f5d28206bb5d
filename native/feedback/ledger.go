package feedback

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"buildledger/core/events"
	"buildledger/core/types"
)

var (
	// ErrNotRegistered marks profile lookups for unclaimed addresses.
	ErrNotRegistered = errors.New("feedback: contractor not registered")
	// ErrAlreadyRegistered marks a second identity claim for an address.
	ErrAlreadyRegistered = errors.New("feedback: contractor already registered")
	// ErrDuplicateReview marks a second review by the same caller for the
	// same service.
	ErrDuplicateReview = errors.New("feedback: review already submitted")
	// ErrInvalidRating marks ratings outside [1,5].
	ErrInvalidRating = errors.New("feedback: rating out of range")
	// ErrNotParticipant marks review attempts by callers outside the service.
	ErrNotParticipant = errors.New("feedback: caller is not a service participant")
	// ErrServiceNotSettled marks review attempts before the service completed.
	ErrServiceNotSettled = errors.New("feedback: service not completed")
	// ErrServiceUnknown marks review attempts against unknown services.
	ErrServiceUnknown = errors.New("feedback: service not found")
)

// storage abstracts the subset of state manager functionality required by the
// reputation ledger.
type storage interface {
	ProfilePut(*ContractorProfile) error
	ProfileGet(addr [20]byte) (*ContractorProfile, bool, error)
	ReviewsAppend(serviceID uint64, review *Review) error
	ReviewsGet(serviceID uint64) ([]*Review, error)
	LockReviewee(addr [20]byte) func()
}

// ServiceSettlement is the escrow-side view the ledger needs to gate review
// eligibility: who the parties are and whether settlement finished.
type ServiceSettlement struct {
	Client     [20]byte
	Contractor [20]byte
	Completed  bool
}

// ServiceSource resolves settled services. The escrow engine's state is
// adapted to this interface at wiring time; the ledger never mutates it.
type ServiceSource interface {
	ServiceSettlement(id uint64) (ServiceSettlement, bool)
}

type feedbackEvent struct {
	evt *types.Event
}

func (e feedbackEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e feedbackEvent) Event() *types.Event { return e.evt }

// Ledger stores per-service reviews and per-contractor aggregates. Reviews
// are append-only: once recorded they are never edited or removed, and the
// profile counters are maintained incrementally on the same commit.
type Ledger struct {
	store    storage
	services ServiceSource
	emitter  events.Emitter
	nowFn    func() int64
}

// NewLedger constructs a ledger bound to the provided backends.
func NewLedger(store storage, services ServiceSource) *Ledger {
	return &Ledger{
		store:    store,
		services: services,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the wall clock, primarily for deterministic tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	if l == nil {
		return
	}
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

func (l *Ledger) now() int64 {
	if l == nil || l.nowFn == nil {
		return time.Now().Unix()
	}
	return l.nowFn()
}

func (l *Ledger) emit(event *types.Event) {
	if l == nil || l.emitter == nil || event == nil {
		return
	}
	l.emitter.Emit(feedbackEvent{evt: event})
}

// RegisterContractor claims the contractor identity for an address. A second
// claim fails with ErrAlreadyRegistered; a profile materialised implicitly by
// earlier reviews is upgraded in place, keeping its aggregates.
func (l *Ledger) RegisterContractor(addr [20]byte, name, description string, skills []string) (*ContractorProfile, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("feedback: ledger not initialised")
	}
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return nil, errors.New("feedback: name required")
	}
	if addr == ([20]byte{}) {
		return nil, errors.New("feedback: address required")
	}
	unlock := l.store.LockReviewee(addr)
	defer unlock()

	profile, ok, err := l.store.ProfileGet(addr)
	if err != nil {
		return nil, err
	}
	if ok && profile.Registered {
		return nil, fmt.Errorf("%w: %x", ErrAlreadyRegistered, addr)
	}
	if !ok {
		profile = &ContractorProfile{Address: addr}
	}
	profile.Name = trimmedName
	profile.Description = strings.TrimSpace(description)
	profile.Skills = sanitizeSkills(skills)
	profile.Registered = true
	if err := l.store.ProfilePut(profile); err != nil {
		return nil, err
	}
	l.emit(NewContractorRegisteredEvent(profile))
	return profile.Clone(), nil
}

// SubmitReview records a review for a settled service. The caller must be a
// party to the service, the service must have completed, the rating must be
// in [1,5] and each party reviews at most once.
func (l *Ledger) SubmitReview(serviceID uint64, caller [20]byte, rating uint8, comment string) (*Review, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("feedback: ledger not initialised")
	}
	if l.services == nil {
		return nil, errors.New("feedback: service source not configured")
	}
	settlement, ok := l.services.ServiceSettlement(serviceID)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrServiceUnknown, serviceID)
	}
	if caller != settlement.Client && caller != settlement.Contractor {
		return nil, fmt.Errorf("%w: service %d", ErrNotParticipant, serviceID)
	}
	if !settlement.Completed {
		return nil, fmt.Errorf("%w: service %d", ErrServiceNotSettled, serviceID)
	}
	isClient := caller == settlement.Client
	reviewee := settlement.Contractor
	if !isClient {
		reviewee = settlement.Client
	}
	review := &Review{
		ServiceID: serviceID,
		Reviewer:  caller,
		Reviewee:  reviewee,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
		IsClient:  isClient,
		Timestamp: l.now(),
	}
	if err := review.Validate(); err != nil {
		return nil, err
	}

	unlock := l.store.LockReviewee(reviewee)
	defer unlock()

	existing, err := l.store.ReviewsGet(serviceID)
	if err != nil {
		return nil, err
	}
	for _, prior := range existing {
		if prior != nil && prior.Reviewer == caller {
			return nil, fmt.Errorf("%w: service %d", ErrDuplicateReview, serviceID)
		}
	}
	if err := l.store.ReviewsAppend(serviceID, review); err != nil {
		return nil, err
	}
	if err := l.applyAggregates(review); err != nil {
		return nil, err
	}
	l.emit(NewReviewSubmittedEvent(review))
	return review.Clone(), nil
}

// applyAggregates folds the review into the reviewee's profile counters. A
// client review of the contractor also advances the job bookkeeping, since
// review eligibility implies the service settled.
func (l *Ledger) applyAggregates(review *Review) error {
	profile, ok, err := l.store.ProfileGet(review.Reviewee)
	if err != nil {
		return err
	}
	if !ok {
		profile = &ContractorProfile{Address: review.Reviewee}
	}
	profile.TotalRating += uint64(review.Rating)
	profile.ReviewCount++
	if review.IsClient {
		profile.TotalJobs++
		profile.CompletedJobs++
	}
	return l.store.ProfilePut(profile)
}

// ContractorRating returns the average rating in hundredths of a star. An
// unknown or unreviewed contractor reports 0.
func (l *Ledger) ContractorRating(addr [20]byte) (uint64, error) {
	if l == nil || l.store == nil {
		return 0, errors.New("feedback: ledger not initialised")
	}
	profile, ok, err := l.store.ProfileGet(addr)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return profile.AverageRatingHundredths(), nil
}

// Profile returns the registered profile for an address.
func (l *Ledger) Profile(addr [20]byte) (*ContractorProfile, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("feedback: ledger not initialised")
	}
	profile, ok, err := l.store.ProfileGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok || !profile.Registered {
		return nil, fmt.Errorf("%w: %x", ErrNotRegistered, addr)
	}
	return profile.Clone(), nil
}

// ServiceReviews returns all reviews recorded for a service.
func (l *Ledger) ServiceReviews(serviceID uint64) ([]*Review, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("feedback: ledger not initialised")
	}
	reviews, err := l.store.ReviewsGet(serviceID)
	if err != nil {
		return nil, err
	}
	out := make([]*Review, len(reviews))
	for i, review := range reviews {
		out[i] = review.Clone()
	}
	return out, nil
}
