package rpc

import (
	"net/http"
	"strings"

	"buildledger/core/types"
)

type listEventsParams struct {
	From       uint64 `json:"from"`
	TypePrefix string `json:"typePrefix"`
	Limit      int    `json:"limit"`
}

type eventEntryJSON struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type eventCountJSON struct {
	Count uint64 `json:"count"`
}

type balanceJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func eventToJSON(seq uint64, evt types.Event) eventEntryJSON {
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return eventEntryJSON{Sequence: seq, Type: evt.Type, Attributes: attrs}
}

func (s *Server) handleLedgerListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params := listEventsParams{Limit: 100}
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	entries, err := s.node.ListEvents(params.From, strings.TrimSpace(params.TypePrefix), params.Limit)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	out := make([]eventEntryJSON, 0, len(entries))
	for _, entry := range entries {
		out = append(out, eventToJSON(entry.Sequence, entry.Event))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleLedgerEventCount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, eventCountJSON{Count: s.node.EventCount()})
}

func (s *Server) handleLedgerGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	balance, err := s.node.GetBalance(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceJSON{Address: strings.TrimSpace(params.Address), Balance: balance.String()})
}
