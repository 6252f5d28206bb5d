package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"buildledger/core"
	"buildledger/crypto"
	"buildledger/native/escrow"
	"buildledger/native/feedback"
	"buildledger/native/staking"
	"buildledger/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotAuthorized  = -32001
	codeNotFound       = -32004
	codeInvalidState   = -32005
	codeInsufficient   = -32010
	codeDuplicate      = -32011
)

// Server exposes the node's settlement operations over JSON-RPC.
type Server struct {
	node    *core.Node
	logger  *slog.Logger
	metrics interface {
		Observe(module, method string, status int, duration time.Duration)
	}
}

// NewServer constructs an RPC server bound to the node.
func NewServer(node *core.Node, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:    node,
		logger:  logger,
		metrics: observability.ModuleMetrics(),
	}
}

// Router builds the HTTP surface: the JSON-RPC endpoint at the root plus
// health and metrics endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start serves the router on addr until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("address", addr))
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeEngineError maps typed engine sentinels onto stable RPC error codes.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	status, code := classifyError(err)
	writeError(w, status, id, code, err.Error(), nil)
}

func classifyError(err error) (int, int) {
	switch {
	case errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, escrow.ErrMilestoneNotFound),
		errors.Is(err, feedback.ErrNotRegistered),
		errors.Is(err, feedback.ErrServiceUnknown),
		errors.Is(err, staking.ErrNoPosition):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, escrow.ErrNotAuthorized),
		errors.Is(err, feedback.ErrNotParticipant):
		return http.StatusForbidden, codeNotAuthorized
	case errors.Is(err, escrow.ErrInsufficientFunds),
		errors.Is(err, staking.ErrInsufficientFunds),
		errors.Is(err, staking.ErrInsufficientStake),
		errors.Is(err, staking.ErrTreasuryDepleted):
		return http.StatusBadRequest, codeInsufficient
	case errors.Is(err, feedback.ErrDuplicateReview),
		errors.Is(err, feedback.ErrAlreadyRegistered),
		errors.Is(err, escrow.ErrAlreadyReleased):
		return http.StatusConflict, codeDuplicate
	case errors.Is(err, escrow.ErrInvalidState),
		errors.Is(err, escrow.ErrOutOfOrder),
		errors.Is(err, feedback.ErrServiceNotSettled):
		return http.StatusConflict, codeInvalidState
	case errors.Is(err, escrow.ErrAmountMismatch),
		errors.Is(err, feedback.ErrInvalidRating),
		errors.Is(err, staking.ErrInvalidAmount):
		return http.StatusBadRequest, codeInvalidParams
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	started := time.Now()
	s.dispatch(recorder, r, req)
	module := req.Method
	if idx := strings.IndexByte(module, '_'); idx > 0 {
		module = module[:idx]
	}
	s.metrics.Observe(module, req.Method, recorder.status, time.Since(started))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "escrow_createService":
		s.handleEscrowCreateService(w, r, req)
	case "escrow_startMilestone":
		s.handleEscrowStartMilestone(w, r, req)
	case "escrow_completeMilestone":
		s.handleEscrowCompleteMilestone(w, r, req)
	case "escrow_approveMilestone":
		s.handleEscrowApproveMilestone(w, r, req)
	case "escrow_raiseDispute":
		s.handleEscrowRaiseDispute(w, r, req)
	case "escrow_resolveDispute":
		s.handleEscrowResolveDispute(w, r, req)
	case "escrow_cancelService":
		s.handleEscrowCancelService(w, r, req)
	case "escrow_getService":
		s.handleEscrowGetService(w, r, req)
	case "escrow_getMilestones":
		s.handleEscrowGetMilestones(w, r, req)
	case "escrow_listByClient":
		s.handleEscrowListByClient(w, r, req)
	case "escrow_listByContractor":
		s.handleEscrowListByContractor(w, r, req)
	case "feedback_registerContractor":
		s.handleFeedbackRegisterContractor(w, r, req)
	case "feedback_submitReview":
		s.handleFeedbackSubmitReview(w, r, req)
	case "feedback_getContractorRating":
		s.handleFeedbackGetContractorRating(w, r, req)
	case "feedback_getProfile":
		s.handleFeedbackGetProfile(w, r, req)
	case "feedback_getServiceReviews":
		s.handleFeedbackGetServiceReviews(w, r, req)
	case "staking_stake":
		s.handleStakingStake(w, r, req)
	case "staking_unstake":
		s.handleStakingUnstake(w, r, req)
	case "staking_claimRewards":
		s.handleStakingClaimRewards(w, r, req)
	case "staking_getPendingRewards":
		s.handleStakingGetPendingRewards(w, r, req)
	case "staking_getPosition":
		s.handleStakingGetPosition(w, r, req)
	case "staking_getTotalStaked":
		s.handleStakingGetTotalStaked(w, r, req)
	case "ledger_listEvents":
		s.handleLedgerListEvents(w, r, req)
	case "ledger_eventCount":
		s.handleLedgerEventCount(w, r, req)
	case "ledger_getBalance":
		s.handleLedgerGetBalance(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseBech32Address(value string) ([20]byte, error) {
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, err
	}
	return decoded.Bytes(), nil
}
