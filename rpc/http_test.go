package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"buildledger/config"
	"buildledger/core"
	"buildledger/crypto"
	"buildledger/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func testBech32(fill byte) string {
	return crypto.NewAddress(testAddr(fill)).String()
}

func newTestServer(t *testing.T, alloc []config.GenesisAccount) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		RPCAddress:    ":0",
		DataDir:       t.TempDir(),
		RewardRateBps: 500,
		GenesisAlloc:  alloc,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	node, err := core.NewNode(storage.NewMemDB(), cfg, logger)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	server := httptest.NewServer(NewServer(node, logger).Router())
	t.Cleanup(server.Close)
	return server
}

func rpcCall(t *testing.T, server *httptest.Server, method string, params interface{}) (json.RawMessage, *RPCError, int) {
	t.Helper()
	reqParams := []interface{}{}
	if params != nil {
		reqParams = append(reqParams, params)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
		"params":  reqParams,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(server.URL, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", method, err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode %s response: %v", method, err)
	}
	return decoded.Result, decoded.Error, resp.StatusCode
}

func TestEscrowLifecycleOverRPC(t *testing.T) {
	client := testBech32(0x01)
	contractor := testBech32(0x02)
	server := newTestServer(t, []config.GenesisAccount{{Address: client, Balance: "1000"}})

	result, rpcErr, status := rpcCall(t, server, "escrow_createService", map[string]interface{}{
		"client":      client,
		"contractor":  contractor,
		"totalAmount": "1000",
		"description": "bathroom renovation",
		"serviceType": "plumbing",
		"milestones": []map[string]string{
			{"description": "rough-in", "amount": "400"},
			{"description": "fixtures", "amount": "600"},
		},
	})
	if rpcErr != nil || status != http.StatusOK {
		t.Fatalf("create: status=%d err=%+v", status, rpcErr)
	}
	var created serviceJSON
	if err := json.Unmarshal(result, &created); err != nil {
		t.Fatalf("decode service: %v", err)
	}
	if created.ID != 1 || created.Status != "created" || len(created.Milestones) != 2 {
		t.Fatalf("created service: %+v", created)
	}

	for index := uint64(0); index < 2; index++ {
		for _, method := range []string{"escrow_startMilestone", "escrow_completeMilestone"} {
			if _, rpcErr, status = rpcCall(t, server, method, map[string]interface{}{
				"serviceId": created.ID, "milestone": index, "caller": contractor,
			}); rpcErr != nil || status != http.StatusOK {
				t.Fatalf("%s %d: status=%d err=%+v", method, index, status, rpcErr)
			}
		}
		if _, rpcErr, status = rpcCall(t, server, "escrow_approveMilestone", map[string]interface{}{
			"serviceId": created.ID, "milestone": index, "caller": client,
		}); rpcErr != nil || status != http.StatusOK {
			t.Fatalf("approve %d: status=%d err=%+v", index, status, rpcErr)
		}
	}

	result, rpcErr, _ = rpcCall(t, server, "escrow_getService", map[string]interface{}{"serviceId": created.ID})
	if rpcErr != nil {
		t.Fatalf("get service: %+v", rpcErr)
	}
	var settled serviceJSON
	if err := json.Unmarshal(result, &settled); err != nil {
		t.Fatalf("decode settled: %v", err)
	}
	if settled.Status != "completed" || settled.ReleasedAmount != "1000" {
		t.Fatalf("settled service: %+v", settled)
	}

	result, rpcErr, _ = rpcCall(t, server, "ledger_getBalance", map[string]interface{}{"address": contractor})
	if rpcErr != nil {
		t.Fatalf("balance: %+v", rpcErr)
	}
	var balance balanceJSON
	if err := json.Unmarshal(result, &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.Balance != "1000" {
		t.Fatalf("contractor balance: %s", balance.Balance)
	}

	if _, rpcErr, status = rpcCall(t, server, "feedback_submitReview", map[string]interface{}{
		"serviceId": created.ID, "caller": client, "rating": 5, "comment": "excellent",
	}); rpcErr != nil || status != http.StatusOK {
		t.Fatalf("review: status=%d err=%+v", status, rpcErr)
	}
	result, rpcErr, _ = rpcCall(t, server, "feedback_getContractorRating", map[string]interface{}{"address": contractor})
	if rpcErr != nil {
		t.Fatalf("rating: %+v", rpcErr)
	}
	var rating ratingJSON
	if err := json.Unmarshal(result, &rating); err != nil {
		t.Fatalf("decode rating: %v", err)
	}
	if rating.AverageRating != 500 {
		t.Fatalf("rating: %d", rating.AverageRating)
	}

	result, rpcErr, _ = rpcCall(t, server, "ledger_listEvents", map[string]interface{}{"typePrefix": "escrow."})
	if rpcErr != nil {
		t.Fatalf("events: %+v", rpcErr)
	}
	var entries []eventEntryJSON
	if err := json.Unmarshal(result, &entries); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(entries) == 0 || entries[0].Type != "escrow.serviceCreated" {
		t.Fatalf("events: %+v", entries)
	}
}

func TestStakingOverRPC(t *testing.T) {
	owner := testBech32(0x03)
	server := newTestServer(t, []config.GenesisAccount{{Address: owner, Balance: "5000"}})

	result, rpcErr, status := rpcCall(t, server, "staking_stake", map[string]interface{}{
		"owner": owner, "amount": "2000",
	})
	if rpcErr != nil || status != http.StatusOK {
		t.Fatalf("stake: status=%d err=%+v", status, rpcErr)
	}
	var pos positionJSON
	if err := json.Unmarshal(result, &pos); err != nil {
		t.Fatalf("decode position: %v", err)
	}
	if pos.Amount != "2000" {
		t.Fatalf("position: %+v", pos)
	}

	result, rpcErr, _ = rpcCall(t, server, "staking_getTotalStaked", nil)
	if rpcErr != nil {
		t.Fatalf("total: %+v", rpcErr)
	}
	var total totalStakedJSON
	if err := json.Unmarshal(result, &total); err != nil {
		t.Fatalf("decode total: %v", err)
	}
	if total.TotalStaked != "2000" {
		t.Fatalf("total staked: %s", total.TotalStaked)
	}

	if _, rpcErr, status = rpcCall(t, server, "staking_stake", map[string]interface{}{
		"owner": owner, "amount": "9000",
	}); rpcErr == nil || rpcErr.Code != codeInsufficient || status != http.StatusBadRequest {
		t.Fatalf("over-stake: status=%d err=%+v", status, rpcErr)
	}
}

func TestErrorMapping(t *testing.T) {
	server := newTestServer(t, nil)

	_, rpcErr, status := rpcCall(t, server, "escrow_getService", map[string]interface{}{"serviceId": 42})
	if rpcErr == nil || rpcErr.Code != codeNotFound || status != http.StatusNotFound {
		t.Fatalf("missing service: status=%d err=%+v", status, rpcErr)
	}

	_, rpcErr, status = rpcCall(t, server, "ledger_getBalance", map[string]interface{}{"address": "bogus"})
	if rpcErr == nil || rpcErr.Code != codeInvalidParams || status != http.StatusBadRequest {
		t.Fatalf("bad address: status=%d err=%+v", status, rpcErr)
	}

	_, rpcErr, status = rpcCall(t, server, "no_suchMethod", nil)
	if rpcErr == nil || rpcErr.Code != codeMethodNotFound || status != http.StatusNotFound {
		t.Fatalf("unknown method: status=%d err=%+v", status, rpcErr)
	}

	resp, err := http.Post(server.URL, "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("empty body post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty body status: %d", resp.StatusCode)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	server := newTestServer(t, nil)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", resp.StatusCode)
	}

	metrics, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer metrics.Body.Close()
	if metrics.StatusCode != http.StatusOK {
		t.Fatalf("metrics status: %d", metrics.StatusCode)
	}
}
