package rpc

import (
	"log/slog"
	"net/http"
	"strings"

	"buildledger/crypto"
	"buildledger/native/feedback"
	"buildledger/observability/logging"
)

type registerContractorParams struct {
	Address     string   `json:"address"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
}

type submitReviewParams struct {
	ServiceID uint64 `json:"serviceId"`
	Caller    string `json:"caller"`
	Rating    uint8  `json:"rating"`
	Comment   string `json:"comment"`
}

type profileJSON struct {
	Address       string   `json:"address"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Skills        []string `json:"skills"`
	TotalJobs     uint64   `json:"totalJobs"`
	CompletedJobs uint64   `json:"completedJobs"`
	ReviewCount   uint64   `json:"reviewCount"`
	AverageRating uint64   `json:"averageRating"`
	Verified      bool     `json:"verified"`
}

type reviewJSON struct {
	ServiceID uint64 `json:"serviceId"`
	Reviewer  string `json:"reviewer"`
	Reviewee  string `json:"reviewee"`
	Rating    uint8  `json:"rating"`
	Comment   string `json:"comment"`
	IsClient  bool   `json:"isClient"`
	Timestamp int64  `json:"timestamp"`
}

type ratingJSON struct {
	Address       string `json:"address"`
	AverageRating uint64 `json:"averageRating"`
}

func profileToJSON(p *feedback.ContractorProfile) profileJSON {
	skills := p.Skills
	if skills == nil {
		skills = []string{}
	}
	return profileJSON{
		Address:       crypto.NewAddress(p.Address).String(),
		Name:          p.Name,
		Description:   p.Description,
		Skills:        skills,
		TotalJobs:     p.TotalJobs,
		CompletedJobs: p.CompletedJobs,
		ReviewCount:   p.ReviewCount,
		AverageRating: p.AverageRatingHundredths(),
		Verified:      p.Verified,
	}
}

func reviewToJSON(r *feedback.Review) reviewJSON {
	return reviewJSON{
		ServiceID: r.ServiceID,
		Reviewer:  crypto.NewAddress(r.Reviewer).String(),
		Reviewee:  crypto.NewAddress(r.Reviewee).String(),
		Rating:    r.Rating,
		Comment:   r.Comment,
		IsClient:  r.IsClient,
		Timestamp: r.Timestamp,
	}
}

func (s *Server) handleFeedbackRegisterContractor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registerContractorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	profile, err := s.node.RegisterContractor(addr, params.Name, params.Description, params.Skills)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.logger.Info("contractor registered",
		logging.MaskField("name", profile.Name),
		logging.MaskField("address", params.Address))
	writeResult(w, req.ID, profileToJSON(profile))
}

func (s *Server) handleFeedbackSubmitReview(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params submitReviewParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	review, err := s.node.SubmitReview(params.ServiceID, caller, params.Rating, strings.TrimSpace(params.Comment))
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.logger.Info("review submitted",
		slog.Uint64("serviceId", params.ServiceID),
		logging.MaskField("comment", review.Comment))
	writeResult(w, req.ID, reviewToJSON(review))
}

func (s *Server) handleFeedbackGetContractorRating(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	rating, err := s.node.ContractorRating(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ratingJSON{Address: strings.TrimSpace(params.Address), AverageRating: rating})
}

func (s *Server) handleFeedbackGetProfile(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	profile, err := s.node.ContractorProfile(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, profileToJSON(profile))
}

func (s *Server) handleFeedbackGetServiceReviews(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params serviceIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	reviews, err := s.node.ServiceReviews(params.ServiceID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	out := make([]reviewJSON, 0, len(reviews))
	for _, review := range reviews {
		out = append(out, reviewToJSON(review))
	}
	writeResult(w, req.ID, out)
}
