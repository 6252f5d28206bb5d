package state

import (
	"fmt"

	"buildledger/native/feedback"
)

func profileKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("feedback/profile/%x", addr))
}

func reviewsKey(serviceID uint64) []byte {
	return []byte(fmt.Sprintf("feedback/reviews/%020d", serviceID))
}

type storedProfile struct {
	Address       [20]byte
	Name          string
	Description   string
	Skills        []string
	TotalJobs     uint64
	CompletedJobs uint64
	TotalRating   uint64
	ReviewCount   uint64
	Verified      bool
	Registered    bool
}

func newStoredProfile(profile *feedback.ContractorProfile) *storedProfile {
	return &storedProfile{
		Address:       profile.Address,
		Name:          profile.Name,
		Description:   profile.Description,
		Skills:        profile.Skills,
		TotalJobs:     profile.TotalJobs,
		CompletedJobs: profile.CompletedJobs,
		TotalRating:   profile.TotalRating,
		ReviewCount:   profile.ReviewCount,
		Verified:      profile.Verified,
		Registered:    profile.Registered,
	}
}

func (s *storedProfile) profile() *feedback.ContractorProfile {
	return &feedback.ContractorProfile{
		Address:       s.Address,
		Name:          s.Name,
		Description:   s.Description,
		Skills:        s.Skills,
		TotalJobs:     s.TotalJobs,
		CompletedJobs: s.CompletedJobs,
		TotalRating:   s.TotalRating,
		ReviewCount:   s.ReviewCount,
		Verified:      s.Verified,
		Registered:    s.Registered,
	}
}

type storedReview struct {
	ServiceID uint64
	Reviewer  [20]byte
	Reviewee  [20]byte
	Rating    uint8
	Comment   string
	IsClient  bool
	Timestamp uint64
}

func newStoredReview(review *feedback.Review) storedReview {
	return storedReview{
		ServiceID: review.ServiceID,
		Reviewer:  review.Reviewer,
		Reviewee:  review.Reviewee,
		Rating:    review.Rating,
		Comment:   review.Comment,
		IsClient:  review.IsClient,
		Timestamp: clampUnix(review.Timestamp),
	}
}

func (s storedReview) review() *feedback.Review {
	return &feedback.Review{
		ServiceID: s.ServiceID,
		Reviewer:  s.Reviewer,
		Reviewee:  s.Reviewee,
		Rating:    s.Rating,
		Comment:   s.Comment,
		IsClient:  s.IsClient,
		Timestamp: int64(s.Timestamp),
	}
}

// ProfilePut persists a contractor profile.
func (m *Manager) ProfilePut(profile *feedback.ContractorProfile) error {
	if profile == nil {
		return fmt.Errorf("state: nil profile")
	}
	return m.write(profileKey(profile.Address), newStoredProfile(profile))
}

// ProfileGet loads the profile stored for addr. The second return reports
// whether a record exists.
func (m *Manager) ProfileGet(addr [20]byte) (*feedback.ContractorProfile, bool, error) {
	stored := new(storedProfile)
	ok, err := m.load(profileKey(addr), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.profile(), true, nil
}

// ReviewsAppend adds a review to the per-service log. Reviews are append
// only; nothing ever rewrites or removes an entry.
func (m *Manager) ReviewsAppend(serviceID uint64, review *feedback.Review) error {
	if review == nil {
		return fmt.Errorf("state: nil review")
	}
	unlock := m.locks.lock(string(reviewsKey(serviceID)))
	defer unlock()

	var stored []storedReview
	if _, err := m.load(reviewsKey(serviceID), &stored); err != nil {
		return err
	}
	stored = append(stored, newStoredReview(review))
	return m.write(reviewsKey(serviceID), stored)
}

// ReviewsGet returns the reviews recorded for a service, oldest first.
func (m *Manager) ReviewsGet(serviceID uint64) ([]*feedback.Review, error) {
	var stored []storedReview
	if _, err := m.load(reviewsKey(serviceID), &stored); err != nil {
		return nil, err
	}
	reviews := make([]*feedback.Review, len(stored))
	for i, entry := range stored {
		reviews[i] = entry.review()
	}
	return reviews, nil
}

// LockReviewee serializes review submission and profile mutation for a
// single reviewee.
func (m *Manager) LockReviewee(addr [20]byte) func() {
	return m.locks.lock(fmt.Sprintf("feedback/reviewee/%x", addr))
}
