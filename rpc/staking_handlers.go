package rpc

import (
	"math/big"
	"net/http"

	"buildledger/config"
	"buildledger/crypto"
	"buildledger/native/staking"
)

type stakeParams struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type ownerParams struct {
	Owner string `json:"owner"`
}

type positionJSON struct {
	Owner      string `json:"owner"`
	Amount     string `json:"amount"`
	Since      int64  `json:"since"`
	RewardDebt string `json:"rewardDebt"`
}

type claimJSON struct {
	Owner string `json:"owner"`
	Paid  string `json:"paid"`
}

type pendingJSON struct {
	Owner   string `json:"owner"`
	Pending string `json:"pending"`
}

type totalStakedJSON struct {
	TotalStaked string `json:"totalStaked"`
}

func positionToJSON(pos *staking.Position) *positionJSON {
	if pos == nil {
		return nil
	}
	return &positionJSON{
		Owner:      crypto.NewAddress(pos.Owner).String(),
		Amount:     pos.Amount.String(),
		Since:      pos.Since,
		RewardDebt: pos.RewardDebt.String(),
	}
}

func (s *Server) stakeMovement(w http.ResponseWriter, req *RPCRequest, move func(owner [20]byte, amount *big.Int) (*staking.Position, error)) {
	var params stakeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := config.ParseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	pos, err := move(owner, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, positionToJSON(pos))
}

func (s *Server) handleStakingStake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.stakeMovement(w, req, s.node.Stake)
}

func (s *Server) handleStakingUnstake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.stakeMovement(w, req, s.node.Unstake)
}

func (s *Server) handleStakingClaimRewards(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params ownerParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	paid, err := s.node.ClaimRewards(owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, claimJSON{Owner: crypto.NewAddress(owner).String(), Paid: paid.String()})
}

func (s *Server) handleStakingGetPendingRewards(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params ownerParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	pending, err := s.node.PendingRewards(owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, pendingJSON{Owner: crypto.NewAddress(owner).String(), Pending: pending.String()})
}

func (s *Server) handleStakingGetPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params ownerParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	pos, err := s.node.StakePosition(owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, positionToJSON(pos))
}

func (s *Server) handleStakingGetTotalStaked(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	total, err := s.node.TotalStaked()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, totalStakedJSON{TotalStaked: total.String()})
}
