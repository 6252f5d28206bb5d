package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"buildledger/config"
	"buildledger/core/events"
	"buildledger/core/state"
	"buildledger/crypto"
	"buildledger/native/escrow"
	"buildledger/native/feedback"
	"buildledger/native/staking"
	"buildledger/observability"
	"buildledger/storage"
)

// ModuleAddress derives the deterministic account address for a named ledger
// module. Module accounts hold no keys; only engine code can move their
// funds.
func ModuleAddress(label string) [20]byte {
	hash := ethcrypto.Keccak256([]byte(label))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

var (
	// EscrowVaultAddress holds deposits between service creation and release.
	EscrowVaultAddress = ModuleAddress("buildledger/escrow/vault")
	// StakingVaultAddress holds staked principal.
	StakingVaultAddress = ModuleAddress("buildledger/staking/vault")
	// RewardsTreasuryAddress funds staking reward payouts.
	RewardsTreasuryAddress = ModuleAddress("buildledger/staking/treasury")
	// DefaultArbiterAddress resolves disputes when no arbiter is configured.
	DefaultArbiterAddress = ModuleAddress("buildledger/escrow/arbiter")
)

var genesisAppliedKey = []byte("genesis/applied")

// Node wires storage, state, the event outbox and the three settlement
// engines together and is the single entry point the RPC layer talks to.
type Node struct {
	db       storage.Database
	state    *state.Manager
	outbox   *events.Outbox
	escrow   *escrow.Engine
	feedback *feedback.Ledger
	staking  *staking.Pool
	arbiter  [20]byte
	logger   *slog.Logger
	metrics  *observability.SettlementMetrics
}

// settlementSource adapts escrow state to the narrow view the reputation
// ledger needs for review gating.
type settlementSource struct {
	state *state.Manager
}

func (s settlementSource) ServiceSettlement(id uint64) (feedback.ServiceSettlement, bool) {
	svc, ok, err := s.state.ServiceGet(id)
	if err != nil || !ok {
		return feedback.ServiceSettlement{}, false
	}
	return feedback.ServiceSettlement{
		Client:     svc.Client,
		Contractor: svc.Contractor,
		Completed:  svc.Status == escrow.ServiceStatusCompleted,
	}, true
}

// NewNode constructs a node over the supplied database, applying genesis
// allocations from the configuration on first boot.
func NewNode(db storage.Database, cfg *config.Config, logger *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: nil database")
	}
	if cfg == nil {
		return nil, fmt.Errorf("core: nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}

	manager := state.NewManager(db)
	outbox, err := events.NewOutbox(db)
	if err != nil {
		return nil, fmt.Errorf("core: open event outbox: %w", err)
	}

	arbiter := DefaultArbiterAddress
	if trimmed := strings.TrimSpace(cfg.Arbiter); trimmed != "" {
		decoded, err := crypto.DecodeAddress(trimmed)
		if err != nil {
			return nil, fmt.Errorf("core: invalid arbiter address: %w", err)
		}
		arbiter = decoded.Bytes()
	}

	escrowEngine := escrow.NewEngine()
	escrowEngine.SetState(manager)
	escrowEngine.SetVault(EscrowVaultAddress)
	escrowEngine.SetArbiter(arbiter)
	escrowEngine.SetEmitter(outbox)

	ledger := feedback.NewLedger(manager, settlementSource{state: manager})
	ledger.SetEmitter(outbox)

	pool := staking.NewPool(cfg.RewardRateBps)
	pool.SetState(manager)
	pool.SetVault(StakingVaultAddress)
	pool.SetTreasury(RewardsTreasuryAddress)

	node := &Node{
		db:       db,
		state:    manager,
		outbox:   outbox,
		escrow:   escrowEngine,
		feedback: ledger,
		staking:  pool,
		arbiter:  arbiter,
		logger:   logger,
		metrics:  observability.Settlement(),
	}
	if err := node.applyGenesis(cfg.GenesisAlloc); err != nil {
		return nil, err
	}
	node.refreshGauges()
	return node, nil
}

// applyGenesis seeds configured balances exactly once per data directory.
func (n *Node) applyGenesis(alloc []config.GenesisAccount) error {
	applied, err := n.db.Has(genesisAppliedKey)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	for _, entry := range alloc {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(entry.Address))
		if err != nil {
			return fmt.Errorf("core: genesis alloc: %w", err)
		}
		balance, err := config.ParseAmount(entry.Balance)
		if err != nil {
			return fmt.Errorf("core: genesis alloc: %w", err)
		}
		account, err := n.state.GetAccount(addr.Bytes())
		if err != nil {
			return err
		}
		account.Balance = new(big.Int).Add(account.Balance, balance)
		if err := n.state.PutAccount(addr.Bytes(), account); err != nil {
			return err
		}
		n.logger.Info("genesis allocation applied",
			slog.String("address", entry.Address),
			slog.String("balance", balance.String()))
	}
	return n.db.Put(genesisAppliedKey, []byte{1})
}

func (n *Node) refreshGauges() {
	if vault, err := n.state.GetAccount(EscrowVaultAddress); err == nil {
		custody, _ := new(big.Float).SetInt(vault.Balance).Float64()
		n.metrics.SetValueInCustody(custody)
	}
	if total, err := n.staking.TotalStaked(); err == nil {
		staked, _ := new(big.Float).SetInt(total).Float64()
		n.metrics.SetTotalStaked(staked)
	}
}

// Arbiter returns the address authorised to resolve disputes.
func (n *Node) Arbiter() [20]byte { return n.arbiter }

// State exposes the state manager for read-only access.
func (n *Node) State() *state.Manager { return n.state }

// GetBalance returns the spendable balance of an account.
func (n *Node) GetBalance(addr [20]byte) (*big.Int, error) {
	account, err := n.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return account.Balance, nil
}

// --- Escrow operations ---

func (n *Node) CreateService(client, contractor [20]byte, total *big.Int, milestones []escrow.MilestoneDraft, description string, deadline int64, serviceType escrow.ServiceType) (*escrow.Service, error) {
	svc, err := n.escrow.CreateService(client, contractor, total, milestones, description, deadline, serviceType)
	n.metrics.RecordEscrowOp("createService", err)
	if err != nil {
		return nil, err
	}
	n.logger.Info("service created",
		slog.Uint64("serviceId", svc.ID),
		slog.String("type", svc.ServiceType.String()),
		slog.String("total", svc.TotalAmount.String()))
	n.refreshGauges()
	return svc, nil
}

func (n *Node) StartMilestone(serviceID, index uint64, caller [20]byte) error {
	err := n.escrow.StartMilestone(serviceID, index, caller)
	n.metrics.RecordEscrowOp("startMilestone", err)
	return err
}

func (n *Node) CompleteMilestone(serviceID, index uint64, caller [20]byte) error {
	err := n.escrow.CompleteMilestone(serviceID, index, caller)
	n.metrics.RecordEscrowOp("completeMilestone", err)
	return err
}

func (n *Node) ApproveMilestone(serviceID, index uint64, caller [20]byte) error {
	err := n.escrow.ApproveMilestone(serviceID, index, caller)
	n.metrics.RecordEscrowOp("approveMilestone", err)
	if err == nil {
		n.logger.Info("milestone payment released",
			slog.Uint64("serviceId", serviceID),
			slog.Uint64("milestone", index))
		n.refreshGauges()
	}
	return err
}

func (n *Node) RaiseDispute(serviceID uint64, caller [20]byte) error {
	err := n.escrow.RaiseDispute(serviceID, caller)
	n.metrics.RecordEscrowOp("raiseDispute", err)
	return err
}

func (n *Node) ResolveDispute(serviceID uint64, resolver [20]byte, contractorShare, clientShare *big.Int) error {
	err := n.escrow.ResolveDispute(serviceID, resolver, contractorShare, clientShare)
	n.metrics.RecordEscrowOp("resolveDispute", err)
	if err == nil {
		n.logger.Info("dispute resolved", slog.Uint64("serviceId", serviceID))
		n.refreshGauges()
	}
	return err
}

func (n *Node) CancelService(serviceID uint64, caller [20]byte) error {
	err := n.escrow.CancelService(serviceID, caller)
	n.metrics.RecordEscrowOp("cancelService", err)
	if err == nil {
		n.refreshGauges()
	}
	return err
}

func (n *Node) GetService(serviceID uint64) (*escrow.Service, error) {
	return n.escrow.GetService(serviceID)
}

func (n *Node) GetServiceMilestones(serviceID uint64) ([]*escrow.Milestone, error) {
	return n.escrow.GetServiceMilestones(serviceID)
}

func (n *Node) ClientServices(addr [20]byte) ([]uint64, error) {
	return n.escrow.ClientServices(addr)
}

func (n *Node) ContractorServices(addr [20]byte) ([]uint64, error) {
	return n.escrow.ContractorServices(addr)
}

// --- Reputation operations ---

func (n *Node) RegisterContractor(addr [20]byte, name, description string, skills []string) (*feedback.ContractorProfile, error) {
	return n.feedback.RegisterContractor(addr, name, description, skills)
}

func (n *Node) SubmitReview(serviceID uint64, caller [20]byte, rating uint8, comment string) (*feedback.Review, error) {
	review, err := n.feedback.SubmitReview(serviceID, caller, rating, comment)
	if err != nil {
		return nil, err
	}
	n.metrics.RecordReview()
	return review, nil
}

func (n *Node) ContractorRating(addr [20]byte) (uint64, error) {
	return n.feedback.ContractorRating(addr)
}

func (n *Node) ContractorProfile(addr [20]byte) (*feedback.ContractorProfile, error) {
	return n.feedback.Profile(addr)
}

func (n *Node) ServiceReviews(serviceID uint64) ([]*feedback.Review, error) {
	return n.feedback.ServiceReviews(serviceID)
}

// --- Staking operations ---

func (n *Node) Stake(owner [20]byte, amount *big.Int) (*staking.Position, error) {
	pos, err := n.staking.Stake(owner, amount)
	n.metrics.RecordStakingOp("stake", err)
	if err == nil {
		n.refreshGauges()
	}
	return pos, err
}

func (n *Node) Unstake(owner [20]byte, amount *big.Int) (*staking.Position, error) {
	pos, err := n.staking.Unstake(owner, amount)
	n.metrics.RecordStakingOp("unstake", err)
	if err == nil {
		n.refreshGauges()
	}
	return pos, err
}

func (n *Node) ClaimRewards(owner [20]byte) (*big.Int, error) {
	paid, err := n.staking.ClaimRewards(owner)
	n.metrics.RecordStakingOp("claimRewards", err)
	return paid, err
}

func (n *Node) PendingRewards(owner [20]byte) (*big.Int, error) {
	return n.staking.PendingRewards(owner)
}

func (n *Node) StakePosition(owner [20]byte) (*staking.Position, error) {
	return n.staking.GetPosition(owner)
}

func (n *Node) TotalStaked() (*big.Int, error) {
	return n.staking.TotalStaked()
}

// --- Event log ---

func (n *Node) ListEvents(from uint64, typePrefix string, limit int) ([]events.Entry, error) {
	return n.outbox.List(from, typePrefix, limit)
}

func (n *Node) EventCount() uint64 {
	return n.outbox.Len()
}
