package feedback

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

type mockStore struct {
	mu       sync.Mutex
	profiles map[[20]byte]*ContractorProfile
	reviews  map[uint64][]*Review
	locks    map[[20]byte]*sync.Mutex
}

func newMockStore() *mockStore {
	return &mockStore{
		profiles: make(map[[20]byte]*ContractorProfile),
		reviews:  make(map[uint64][]*Review),
		locks:    make(map[[20]byte]*sync.Mutex),
	}
}

func (m *mockStore) ProfilePut(p *ContractorProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.Address] = p.Clone()
	return nil
}

func (m *mockStore) ProfileGet(addr [20]byte) (*ContractorProfile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[addr]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (m *mockStore) ReviewsAppend(serviceID uint64, review *Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[serviceID] = append(m.reviews[serviceID], review.Clone())
	return nil
}

func (m *mockStore) ReviewsGet(serviceID uint64) ([]*Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Review, len(m.reviews[serviceID]))
	for i, r := range m.reviews[serviceID] {
		out[i] = r.Clone()
	}
	return out, nil
}

func (m *mockStore) LockReviewee(addr [20]byte) func() {
	m.mu.Lock()
	lock, ok := m.locks[addr]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[addr] = lock
	}
	m.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

type mockServices struct {
	settlements map[uint64]ServiceSettlement
}

func (m *mockServices) ServiceSettlement(id uint64) (ServiceSettlement, bool) {
	s, ok := m.settlements[id]
	return s, ok
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestLedger(settlements map[uint64]ServiceSettlement) (*Ledger, *mockStore) {
	store := newMockStore()
	ledger := NewLedger(store, &mockServices{settlements: settlements})
	ledger.SetNowFunc(func() int64 { return 1_700_000_000 })
	return ledger, store
}

func TestRegisterContractor(t *testing.T) {
	ledger, _ := newTestLedger(nil)
	contractor := testAddr(0x02)

	profile, err := ledger.RegisterContractor(contractor, "Ada Builders", "full renovations", []string{"plumbing", " roofing ", ""})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if profile.Name != "Ada Builders" || len(profile.Skills) != 2 {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if _, err := ledger.RegisterContractor(contractor, "Ada Builders", "", nil); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestSubmitReviewGating(t *testing.T) {
	client := testAddr(0x01)
	contractor := testAddr(0x02)
	stranger := testAddr(0x03)
	ledger, _ := newTestLedger(map[uint64]ServiceSettlement{
		1: {Client: client, Contractor: contractor, Completed: true},
		2: {Client: client, Contractor: contractor, Completed: false},
	})

	if _, err := ledger.SubmitReview(9, client, 5, ""); !errors.Is(err, ErrServiceUnknown) {
		t.Fatalf("unknown service: %v", err)
	}
	if _, err := ledger.SubmitReview(1, stranger, 5, ""); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger review: %v", err)
	}
	if _, err := ledger.SubmitReview(2, client, 5, ""); !errors.Is(err, ErrServiceNotSettled) {
		t.Fatalf("pre-settlement review: %v", err)
	}
	if _, err := ledger.SubmitReview(1, client, 0, ""); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("rating 0: %v", err)
	}
	if _, err := ledger.SubmitReview(1, client, 6, ""); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("rating 6: %v", err)
	}
}

func TestSubmitReviewAggregates(t *testing.T) {
	client := testAddr(0x01)
	contractor := testAddr(0x02)
	ledger, _ := newTestLedger(map[uint64]ServiceSettlement{
		1: {Client: client, Contractor: contractor, Completed: true},
		2: {Client: client, Contractor: contractor, Completed: true},
	})

	review, err := ledger.SubmitReview(1, client, 4, "solid work")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !review.IsClient || review.Reviewee != contractor {
		t.Fatalf("direction wrong: %+v", review)
	}
	if _, err := ledger.SubmitReview(2, client, 5, ""); err != nil {
		t.Fatalf("second service review: %v", err)
	}

	rating, err := ledger.ContractorRating(contractor)
	if err != nil {
		t.Fatalf("rating: %v", err)
	}
	if rating != 450 {
		t.Fatalf("average: got %d want 450", rating)
	}

	// Contractor reviewing the client flows the other way and does not touch
	// the contractor's own aggregates.
	if _, err := ledger.SubmitReview(1, contractor, 3, ""); err != nil {
		t.Fatalf("contractor review: %v", err)
	}
	rating, _ = ledger.ContractorRating(contractor)
	if rating != 450 {
		t.Fatalf("contractor aggregates moved: %d", rating)
	}
	clientRating, _ := ledger.ContractorRating(client)
	if clientRating != 300 {
		t.Fatalf("client aggregate: got %d want 300", clientRating)
	}
}

func TestSubmitReviewDuplicateRejected(t *testing.T) {
	client := testAddr(0x01)
	contractor := testAddr(0x02)
	ledger, _ := newTestLedger(map[uint64]ServiceSettlement{
		1: {Client: client, Contractor: contractor, Completed: true},
	})

	if _, err := ledger.SubmitReview(1, client, 5, ""); err != nil {
		t.Fatalf("first review: %v", err)
	}
	if _, err := ledger.SubmitReview(1, client, 1, "changed my mind"); !errors.Is(err, ErrDuplicateReview) {
		t.Fatalf("expected ErrDuplicateReview, got %v", err)
	}
	rating, _ := ledger.ContractorRating(contractor)
	if rating != 500 {
		t.Fatalf("first review's contribution changed: %d", rating)
	}
	reviews, err := ledger.ServiceReviews(1)
	if err != nil || len(reviews) != 1 {
		t.Fatalf("reviews: %v %v", reviews, err)
	}
}

func TestRatingZeroWithoutReviews(t *testing.T) {
	ledger, _ := newTestLedger(nil)
	rating, err := ledger.ContractorRating(testAddr(0x09))
	if err != nil {
		t.Fatalf("rating: %v", err)
	}
	if rating != 0 {
		t.Fatalf("expected 0, got %d", rating)
	}
}

func TestRegisterAfterImplicitProfileKeepsAggregates(t *testing.T) {
	client := testAddr(0x01)
	contractor := testAddr(0x02)
	ledger, _ := newTestLedger(map[uint64]ServiceSettlement{
		1: {Client: client, Contractor: contractor, Completed: true},
	})

	if _, err := ledger.SubmitReview(1, client, 4, ""); err != nil {
		t.Fatalf("review: %v", err)
	}
	if _, err := ledger.Profile(contractor); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("implicit profile should not be visible: %v", err)
	}
	profile, err := ledger.RegisterContractor(contractor, "Ada Builders", "", nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if profile.ReviewCount != 1 || profile.TotalRating != 4 || profile.CompletedJobs != 1 {
		t.Fatalf("aggregates lost on claim: %+v", profile)
	}
}
