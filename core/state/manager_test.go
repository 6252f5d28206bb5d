package state

import (
	"errors"
	"math/big"
	"testing"

	"buildledger/core/types"
	"buildledger/native/escrow"
	"buildledger/native/feedback"
	"buildledger/native/staking"
	"buildledger/storage"
)

func newTestManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestAccountsRoundTrip(t *testing.T) {
	manager := newTestManager()
	addr := testAddr(0x01)

	account, err := manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if account.Balance.Sign() != 0 || account.Nonce != 0 {
		t.Fatalf("expected zero account, got %+v", account)
	}

	account.Balance = big.NewInt(1_000)
	account.Nonce = 7
	if err := manager.PutAccount(addr, account); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, err := manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Balance.Cmp(big.NewInt(1_000)) != 0 || loaded.Nonce != 7 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestTransferAtomicity(t *testing.T) {
	manager := newTestManager()
	alice := testAddr(0x01)
	bob := testAddr(0x02)
	if err := manager.PutAccount(alice, &types.Account{Balance: big.NewInt(500)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := manager.Transfer(alice, bob, big.NewInt(200)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceAcc, _ := manager.GetAccount(alice)
	bobAcc, _ := manager.GetAccount(bob)
	if aliceAcc.Balance.Cmp(big.NewInt(300)) != 0 || bobAcc.Balance.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("balances after transfer: %s / %s", aliceAcc.Balance, bobAcc.Balance)
	}

	err := manager.Transfer(alice, bob, big.NewInt(301))
	if !errors.Is(err, types.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	aliceAcc, _ = manager.GetAccount(alice)
	bobAcc, _ = manager.GetAccount(bob)
	if aliceAcc.Balance.Cmp(big.NewInt(300)) != 0 || bobAcc.Balance.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("failed transfer mutated balances: %s / %s", aliceAcc.Balance, bobAcc.Balance)
	}

	// Self transfer is a no-op regardless of amount ordering concerns.
	if err := manager.Transfer(alice, alice, big.NewInt(100)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	aliceAcc, _ = manager.GetAccount(alice)
	if aliceAcc.Balance.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("self transfer changed balance: %s", aliceAcc.Balance)
	}
}

func TestServiceRoundTrip(t *testing.T) {
	manager := newTestManager()
	svc := &escrow.Service{
		ID:             1,
		Client:         testAddr(0x01),
		Contractor:     testAddr(0x02),
		TotalAmount:    big.NewInt(900),
		ReleasedAmount: big.NewInt(300),
		Status:         escrow.ServiceStatusInProgress,
		Description:    "repipe kitchen",
		ServiceType:    escrow.ServiceTypePlumbing,
		CreatedAt:      1_700_000_000,
		Deadline:       1_700_600_000,
		Milestones: []*escrow.Milestone{
			{ServiceID: 1, Index: 0, Description: "rough-in", Amount: big.NewInt(300), Status: escrow.MilestoneApproved, CompletedAt: 1_700_100_000},
			{ServiceID: 1, Index: 1, Description: "fixtures", Amount: big.NewInt(600), Status: escrow.MilestoneInProgress},
		},
		CompletedMilestones: 1,
	}
	if err := manager.ServicePut(svc); err != nil {
		t.Fatalf("put: %v", err)
	}

	loaded, ok, err := manager.ServiceGet(1)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if loaded.Status != escrow.ServiceStatusInProgress || loaded.ServiceType != escrow.ServiceTypePlumbing {
		t.Fatalf("enum round trip: %v %v", loaded.Status, loaded.ServiceType)
	}
	if loaded.ReleasedAmount.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("released: %s", loaded.ReleasedAmount)
	}
	if len(loaded.Milestones) != 2 {
		t.Fatalf("milestones: %d", len(loaded.Milestones))
	}
	first := loaded.Milestones[0]
	if first.Status != escrow.MilestoneApproved || first.CompletedAt != 1_700_100_000 || first.ServiceID != 1 {
		t.Fatalf("milestone round trip: %+v", first)
	}

	if _, ok, err := manager.ServiceGet(99); err != nil || ok {
		t.Fatalf("missing service: ok=%v err=%v", ok, err)
	}
}

func TestServicePutRejectsInvalidRecords(t *testing.T) {
	manager := newTestManager()
	svc := &escrow.Service{
		ID:          1,
		Client:      testAddr(0x01),
		Contractor:  testAddr(0x02),
		TotalAmount: big.NewInt(900),
		Milestones: []*escrow.Milestone{
			{Index: 0, Amount: big.NewInt(500)},
		},
	}
	if err := manager.ServicePut(svc); err == nil {
		t.Fatal("expected milestone sum mismatch to be rejected")
	}
}

func TestNextServiceIDMonotonic(t *testing.T) {
	manager := newTestManager()
	for want := uint64(1); want <= 3; want++ {
		id, err := manager.NextServiceID()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if id != want {
			t.Fatalf("id: got %d want %d", id, want)
		}
	}
}

func TestServiceIndexes(t *testing.T) {
	manager := newTestManager()
	client := testAddr(0x01)
	contractor := testAddr(0x02)

	for id := uint64(1); id <= 3; id++ {
		if err := manager.ServiceIndexAppend(client, contractor, id); err != nil {
			t.Fatalf("append %d: %v", id, err)
		}
	}
	// Replays must not duplicate entries.
	if err := manager.ServiceIndexAppend(client, contractor, 2); err != nil {
		t.Fatalf("replay: %v", err)
	}

	forClient, err := manager.ClientServices(client)
	if err != nil {
		t.Fatalf("client services: %v", err)
	}
	forContractor, err := manager.ContractorServices(contractor)
	if err != nil {
		t.Fatalf("contractor services: %v", err)
	}
	want := []uint64{1, 2, 3}
	for i, id := range want {
		if forClient[i] != id || forContractor[i] != id {
			t.Fatalf("index order: client=%v contractor=%v", forClient, forContractor)
		}
	}
	if len(forClient) != 3 || len(forContractor) != 3 {
		t.Fatalf("index length: client=%d contractor=%d", len(forClient), len(forContractor))
	}

	empty, err := manager.ClientServices(testAddr(0x09))
	if err != nil || len(empty) != 0 {
		t.Fatalf("unknown address index: %v %v", empty, err)
	}
}

func TestProfileAndReviews(t *testing.T) {
	manager := newTestManager()
	contractor := testAddr(0x02)

	profile := &feedback.ContractorProfile{
		Address:     contractor,
		Name:        "Hartley Plumbing",
		Skills:      []string{"plumbing", "hvac"},
		TotalRating: 9,
		ReviewCount: 2,
		Registered:  true,
	}
	if err := manager.ProfilePut(profile); err != nil {
		t.Fatalf("put profile: %v", err)
	}
	loaded, ok, err := manager.ProfileGet(contractor)
	if err != nil || !ok {
		t.Fatalf("get profile: ok=%v err=%v", ok, err)
	}
	if !loaded.Registered || loaded.TotalRating != 9 || len(loaded.Skills) != 2 {
		t.Fatalf("profile round trip: %+v", loaded)
	}
	if _, ok, _ := manager.ProfileGet(testAddr(0x09)); ok {
		t.Fatal("unknown profile should not exist")
	}

	reviews := []*feedback.Review{
		{ServiceID: 1, Reviewer: testAddr(0x01), Reviewee: contractor, Rating: 5, IsClient: true, Timestamp: 100},
		{ServiceID: 1, Reviewer: contractor, Reviewee: testAddr(0x01), Rating: 4, Timestamp: 200},
	}
	for _, review := range reviews {
		if err := manager.ReviewsAppend(1, review); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	loadedReviews, err := manager.ReviewsGet(1)
	if err != nil {
		t.Fatalf("get reviews: %v", err)
	}
	if len(loadedReviews) != 2 {
		t.Fatalf("review count: %d", len(loadedReviews))
	}
	if loadedReviews[0].Rating != 5 || !loadedReviews[0].IsClient || loadedReviews[1].Timestamp != 200 {
		t.Fatalf("review order or fields: %+v %+v", loadedReviews[0], loadedReviews[1])
	}
}

func TestPositionsAndTotal(t *testing.T) {
	manager := newTestManager()
	owner := testAddr(0x03)

	total, err := manager.TotalStakedGet()
	if err != nil || total.Sign() != 0 {
		t.Fatalf("initial total: %v %v", total, err)
	}

	pos := &staking.Position{Owner: owner, Amount: big.NewInt(700), Since: 1_700_000_000, RewardDebt: big.NewInt(30)}
	if err := manager.PositionPut(pos); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok, err := manager.PositionGet(owner)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if loaded.Amount.Cmp(big.NewInt(700)) != 0 || loaded.Since != 1_700_000_000 || loaded.RewardDebt.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("position round trip: %+v", loaded)
	}

	if err := manager.TotalStakedPut(big.NewInt(700)); err != nil {
		t.Fatalf("put total: %v", err)
	}
	total, err = manager.TotalStakedGet()
	if err != nil || total.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("total: %v %v", total, err)
	}

	if err := manager.PositionDelete(owner); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := manager.PositionGet(owner); ok {
		t.Fatal("deleted position still present")
	}
}

// The engines accept the manager directly; run one settlement end to end to
// keep the interfaces honest against a persistent backend.
func TestManagerBacksEscrowEngine(t *testing.T) {
	manager := newTestManager()
	client := testAddr(0x01)
	contractor := testAddr(0x02)
	vault := testAddr(0xEE)
	if err := manager.PutAccount(client, &types.Account{Balance: big.NewInt(1_000)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetVault(vault)
	engine.SetArbiter(testAddr(0xAB))

	svc, err := engine.CreateService(client, contractor, big.NewInt(1_000), []escrow.MilestoneDraft{
		{Description: "posts", Amount: big.NewInt(400)},
		{Description: "panels", Amount: big.NewInt(600)},
	}, "fence repair", 0, escrow.ServiceTypeCarpentry)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.StartMilestone(svc.ID, 0, contractor); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.CompleteMilestone(svc.ID, 0, contractor); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := engine.ApproveMilestone(svc.ID, 0, client); err != nil {
		t.Fatalf("approve: %v", err)
	}

	contractorAcc, _ := manager.GetAccount(contractor)
	if contractorAcc.Balance.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("contractor payout: %s", contractorAcc.Balance)
	}
	vaultAcc, _ := manager.GetAccount(vault)
	if vaultAcc.Balance.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("vault custody: %s", vaultAcc.Balance)
	}
	stored, ok, err := manager.ServiceGet(svc.ID)
	if err != nil || !ok {
		t.Fatalf("reload: ok=%v err=%v", ok, err)
	}
	if stored.ReleasedAmount.Cmp(big.NewInt(400)) != 0 || stored.CompletedMilestones != 1 {
		t.Fatalf("stored counters: released=%s completed=%d", stored.ReleasedAmount, stored.CompletedMilestones)
	}
}
