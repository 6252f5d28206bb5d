package feedback

import (
	"errors"
	"fmt"
	"strings"
)

// Review captures one immutable reputation event for a settled service.
type Review struct {
	ServiceID uint64
	Reviewer  [20]byte
	Reviewee  [20]byte
	Rating    uint8
	Comment   string
	IsClient  bool
	Timestamp int64
}

// Validate ensures the review payload is well formed.
func (r *Review) Validate() error {
	if r == nil {
		return errors.New("feedback: review nil")
	}
	if r.Reviewer == ([20]byte{}) {
		return errors.New("feedback: reviewer required")
	}
	if r.Reviewee == ([20]byte{}) {
		return errors.New("feedback: reviewee required")
	}
	if r.Reviewer == r.Reviewee {
		return errors.New("feedback: reviewer and reviewee must differ")
	}
	if r.Rating < 1 || r.Rating > 5 {
		return fmt.Errorf("%w: %d", ErrInvalidRating, r.Rating)
	}
	return nil
}

// Clone returns a copy safe for modification.
func (r *Review) Clone() *Review {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// ContractorProfile aggregates a contractor's identity claim and the derived
// rating counters. AverageRating is always recomputed from TotalRating and
// ReviewCount so the aggregate can never diverge from the review set.
type ContractorProfile struct {
	Address       [20]byte
	Name          string
	Description   string
	Skills        []string
	TotalJobs     uint64
	CompletedJobs uint64
	TotalRating   uint64
	ReviewCount   uint64
	Verified      bool
	// Registered distinguishes an explicit identity claim from a profile
	// materialised implicitly to hold rating aggregates.
	Registered bool
}

// Clone returns a deep copy of the profile.
func (p *ContractorProfile) Clone() *ContractorProfile {
	if p == nil {
		return nil
	}
	clone := *p
	if len(p.Skills) > 0 {
		clone.Skills = append([]string(nil), p.Skills...)
	}
	return &clone
}

// AverageRatingHundredths returns the mean rating scaled by 100 (e.g. 450
// for 4.5 stars). A contractor with zero reviews reports 0, never an error.
func (p *ContractorProfile) AverageRatingHundredths() uint64 {
	if p == nil || p.ReviewCount == 0 {
		return 0
	}
	return p.TotalRating * 100 / p.ReviewCount
}

func sanitizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, skill := range skills {
		trimmed := strings.TrimSpace(skill)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
