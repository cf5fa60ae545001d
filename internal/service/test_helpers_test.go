package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ayo6706/stablesend/internal/callback"
	"github.com/ayo6706/stablesend/internal/dedupe"
	"github.com/ayo6706/stablesend/internal/domain"
	"github.com/ayo6706/stablesend/internal/ens"
	"github.com/ayo6706/stablesend/internal/gateway"
	"github.com/ayo6706/stablesend/internal/models"
	"github.com/ayo6706/stablesend/internal/rates"
)

type memStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]models.TransferRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[uuid.UUID]models.TransferRecord)}
}

func (s *memStore) SaveTransfer(_ context.Context, rec *models.TransferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.UpdatedAt = time.Now()
	s.records[rec.ID] = *rec
	return nil
}

func (s *memStore) GetTransfer(_ context.Context, id uuid.UUID) (*models.TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &rec, nil
}

func (s *memStore) only() models.TransferRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) != 1 {
		panic(fmt.Sprintf("expected exactly one record, have %d", len(s.records)))
	}
	for _, rec := range s.records {
		return rec
	}
	panic("unreachable")
}

func (s *memStore) all() []models.TransferRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TransferRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}

type memDirectory struct {
	users []*models.User
}

func (d *memDirectory) find(match func(*models.User) bool) (*models.User, error) {
	for _, u := range d.users {
		if match(u) {
			return u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (d *memDirectory) UserByID(_ context.Context, id int64) (*models.User, error) {
	return d.find(func(u *models.User) bool { return u.ID == id })
}

func (d *memDirectory) UserByUsername(_ context.Context, username string) (*models.User, error) {
	return d.find(func(u *models.User) bool { return u.Username == username })
}

func (d *memDirectory) UserByWalletID(_ context.Context, walletID string) (*models.User, error) {
	return d.find(func(u *models.User) bool { return u.Wallet.ID == walletID })
}

func (d *memDirectory) UserByWalletAddress(_ context.Context, address string) (*models.User, error) {
	return d.find(func(u *models.User) bool { return u.Wallet.Address == address })
}

type fakeGateway struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	transfers []gateway.TransferParams
	contracts []gateway.ContractParams
	calls     int
	err       error
}

func (g *fakeGateway) Transfer(_ context.Context, params gateway.TransferParams) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.transfers = append(g.transfers, params)
	g.calls++
	return fmt.Sprintf("call-%d", g.calls), nil
}

func (g *fakeGateway) ExecuteContract(_ context.Context, params gateway.ContractParams) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.contracts = append(g.contracts, params)
	g.calls++
	return fmt.Sprintf("call-%d", g.calls), nil
}

func (g *fakeGateway) USDCBalance(context.Context, string) (decimal.Decimal, error) {
	return g.balance, nil
}

func (g *fakeGateway) Transaction(context.Context, string) (*gateway.TransactionDetail, error) {
	return nil, models.ErrNotFound
}

func (g *fakeGateway) contractSignatures() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	sigs := make([]string, len(g.contracts))
	for i, c := range g.contracts {
		sigs[i] = c.FunctionSignature
	}
	return sigs
}

type fakeChain struct {
	message []byte
	hash    string
	err     error
}

func (c *fakeChain) BurnMessage(context.Context, domain.Blockchain, string) ([]byte, string, error) {
	return c.message, c.hash, c.err
}

type fakeWaiter struct {
	attestation string
	err         error
}

func (w *fakeWaiter) AwaitAttestation(context.Context, string) (string, error) {
	return w.attestation, w.err
}

type fakeNotifier struct {
	mu    sync.Mutex
	sends []string
	edits []string
}

func (n *fakeNotifier) Send(_ context.Context, _ int64, text string) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, text)
	return int64(len(n.sends)), nil
}

func (n *fakeNotifier) Edit(_ context.Context, _, _ int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.edits = append(n.edits, text)
	return nil
}

func (n *fakeNotifier) messageCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sends) + len(n.edits)
}

type fakeResolver map[string]string

func (r fakeResolver) Resolve(_ context.Context, name string) (string, error) {
	addr, ok := r[name]
	if !ok {
		return "", ens.ErrNotResolved
	}
	return addr, nil
}

func (r fakeResolver) ReverseLookup(_ context.Context, address string) (string, error) {
	for name, addr := range r {
		if addr == address {
			return name, nil
		}
	}
	return "", ens.ErrNotResolved
}

type fixture struct {
	orchestrator *Orchestrator
	ingester     *Ingester
	store        *memStore
	directory    *memDirectory
	gateway      *fakeGateway
	chain        *fakeChain
	waiter       *fakeWaiter
	notifier     *fakeNotifier
	registry     *callback.Registry
	alice        *models.User
	bob          *models.User
}

func newFixture() *fixture {
	alice := &models.User{
		ID:       1,
		Username: "alice",
		Wallet: models.Wallet{
			ID:         "w-alice",
			Address:    "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			Blockchain: domain.ChainEthSepolia,
		},
	}
	bob := &models.User{
		ID:       2,
		Username: "bob",
		Wallet: models.Wallet{
			ID:         "w-bob",
			Address:    "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
			Blockchain: domain.ChainEthSepolia,
		},
	}

	f := &fixture{
		store:     newMemStore(),
		directory: &memDirectory{users: []*models.User{alice, bob}},
		gateway:   &fakeGateway{balance: decimal.NewFromInt(1000)},
		chain:     &fakeChain{message: []byte{0xde, 0xad}, hash: "0xmsghash"},
		waiter:    &fakeWaiter{attestation: "0xattestation"},
		notifier:  &fakeNotifier{},
		registry:  callback.NewRegistry(time.Hour),
		alice:     alice,
		bob:       bob,
	}
	f.orchestrator = NewOrchestrator(OrchestratorDeps{
		Store:       f.store,
		Directory:   f.directory,
		Registry:    f.registry,
		Gateway:     f.gateway,
		Chain:       f.chain,
		Attestation: f.waiter,
		Rates:       rates.Static{"USD": decimal.NewFromInt(1), "EUR": decimal.RequireFromString("0.8")},
		ENS:         fakeResolver{"bob.eth": bob.Wallet.Address},
		Notifier:    f.notifier,
	})
	f.ingester = NewIngester(f.orchestrator, f.directory, dedupe.None{}, f.notifier, fakeResolver{"bob.eth": f.bob.Wallet.Address})
	return f
}

func tokenRequest(recipient string, kind domain.RecipientKind, network string) models.TransferRequest {
	return models.TransferRequest{
		Amount:        decimal.NewFromInt(10),
		Currency:      "USD",
		Recipient:     recipient,
		RecipientKind: kind,
		Network:       network,
		ValueKind:     domain.ValueToken,
	}
}
