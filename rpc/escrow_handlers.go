package rpc

import (
	"net/http"
	"strings"

	"buildledger/config"
	"buildledger/crypto"
	"buildledger/native/escrow"
)

type milestoneDraftParam struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

type createServiceParams struct {
	Client      string                `json:"client"`
	Contractor  string                `json:"contractor"`
	TotalAmount string                `json:"totalAmount"`
	Description string                `json:"description"`
	ServiceType string                `json:"serviceType"`
	Deadline    int64                 `json:"deadline"`
	Milestones  []milestoneDraftParam `json:"milestones"`
}

type serviceActionParams struct {
	ServiceID uint64 `json:"serviceId"`
	Caller    string `json:"caller"`
}

type milestoneActionParams struct {
	ServiceID uint64 `json:"serviceId"`
	Milestone uint64 `json:"milestone"`
	Caller    string `json:"caller"`
}

type resolveDisputeParams struct {
	ServiceID       uint64 `json:"serviceId"`
	Resolver        string `json:"resolver"`
	ContractorShare string `json:"contractorShare"`
	ClientShare     string `json:"clientShare"`
}

type serviceIDParams struct {
	ServiceID uint64 `json:"serviceId"`
}

type addressParams struct {
	Address string `json:"address"`
}

type milestoneJSON struct {
	Index       uint64 `json:"index"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Status      string `json:"status"`
	CompletedAt int64  `json:"completedAt,omitempty"`
}

type serviceJSON struct {
	ID                  uint64          `json:"id"`
	Client              string          `json:"client"`
	Contractor          string          `json:"contractor"`
	TotalAmount         string          `json:"totalAmount"`
	ReleasedAmount      string          `json:"releasedAmount"`
	Status              string          `json:"status"`
	Description         string          `json:"description"`
	ServiceType         string          `json:"serviceType"`
	CreatedAt           int64           `json:"createdAt"`
	Deadline            int64           `json:"deadline,omitempty"`
	CompletedMilestones uint64          `json:"completedMilestones"`
	Milestones          []milestoneJSON `json:"milestones"`
}

func milestoneToJSON(m *escrow.Milestone) milestoneJSON {
	return milestoneJSON{
		Index:       m.Index,
		Description: m.Description,
		Amount:      m.Amount.String(),
		Status:      m.Status.String(),
		CompletedAt: m.CompletedAt,
	}
}

func serviceToJSON(svc *escrow.Service) serviceJSON {
	out := serviceJSON{
		ID:                  svc.ID,
		Client:              crypto.NewAddress(svc.Client).String(),
		Contractor:          crypto.NewAddress(svc.Contractor).String(),
		TotalAmount:         svc.TotalAmount.String(),
		ReleasedAmount:      svc.ReleasedAmount.String(),
		Status:              svc.Status.String(),
		Description:         svc.Description,
		ServiceType:         svc.ServiceType.String(),
		CreatedAt:           svc.CreatedAt,
		Deadline:            svc.Deadline,
		CompletedMilestones: svc.CompletedMilestones,
		Milestones:          make([]milestoneJSON, 0, len(svc.Milestones)),
	}
	for _, m := range svc.Milestones {
		out.Milestones = append(out.Milestones, milestoneToJSON(m))
	}
	return out
}

func (s *Server) handleEscrowCreateService(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params createServiceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	client, err := parseBech32Address(params.Client)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	contractor, err := parseBech32Address(params.Contractor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	total, err := config.ParseAmount(params.TotalAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	serviceType, err := escrow.ParseServiceType(params.ServiceType)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	drafts := make([]escrow.MilestoneDraft, 0, len(params.Milestones))
	for _, m := range params.Milestones {
		amount, err := config.ParseAmount(m.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		drafts = append(drafts, escrow.MilestoneDraft{
			Description: strings.TrimSpace(m.Description),
			Amount:      amount,
		})
	}

	svc, err := s.node.CreateService(client, contractor, total, drafts, strings.TrimSpace(params.Description), params.Deadline, serviceType)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, serviceToJSON(svc))
}

func (s *Server) milestoneAction(w http.ResponseWriter, req *RPCRequest, action func(serviceID, index uint64, caller [20]byte) error) {
	var params milestoneActionParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := action(params.ServiceID, params.Milestone, caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	svc, err := s.node.GetService(params.ServiceID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, serviceToJSON(svc))
}

func (s *Server) handleEscrowStartMilestone(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.milestoneAction(w, req, s.node.StartMilestone)
}

func (s *Server) handleEscrowCompleteMilestone(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.milestoneAction(w, req, s.node.CompleteMilestone)
}

func (s *Server) handleEscrowApproveMilestone(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.milestoneAction(w, req, s.node.ApproveMilestone)
}

func (s *Server) serviceAction(w http.ResponseWriter, req *RPCRequest, action func(serviceID uint64, caller [20]byte) error) {
	var params serviceActionParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := action(params.ServiceID, caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	svc, err := s.node.GetService(params.ServiceID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, serviceToJSON(svc))
}

func (s *Server) handleEscrowRaiseDispute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.serviceAction(w, req, s.node.RaiseDispute)
}

func (s *Server) handleEscrowCancelService(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.serviceAction(w, req, s.node.CancelService)
}

func (s *Server) handleEscrowResolveDispute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params resolveDisputeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	resolver, err := parseBech32Address(params.Resolver)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	contractorShare, err := config.ParseAmount(params.ContractorShare)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	clientShare, err := config.ParseAmount(params.ClientShare)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.ResolveDispute(params.ServiceID, resolver, contractorShare, clientShare); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	svc, err := s.node.GetService(params.ServiceID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, serviceToJSON(svc))
}

func (s *Server) handleEscrowGetService(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params serviceIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	svc, err := s.node.GetService(params.ServiceID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, serviceToJSON(svc))
}

func (s *Server) handleEscrowGetMilestones(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params serviceIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	milestones, err := s.node.GetServiceMilestones(params.ServiceID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	out := make([]milestoneJSON, 0, len(milestones))
	for _, m := range milestones {
		out = append(out, milestoneToJSON(m))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) serviceListing(w http.ResponseWriter, req *RPCRequest, list func(addr [20]byte) ([]uint64, error)) {
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
	ids, err := list(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ids)
}

func (s *Server) handleEscrowListByClient(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.serviceListing(w, req, s.node.ClientServices)
}

func (s *Server) handleEscrowListByContractor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.serviceListing(w, req, s.node.ContractorServices)
}
