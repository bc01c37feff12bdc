package mempool

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/petronet-labs/petronet-chain/internal/log"
	"github.com/petronet-labs/petronet-chain/pkg/crypto"
	"github.com/petronet-labs/petronet-chain/pkg/tx"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// eventTemplate pairs a supply-chain segment with a payload builder.
type eventTemplate struct {
	kind  tx.Kind
	build func(r *rand.Rand) string
}

var (
	fields     = []string{"Ghawar", "Prudhoe Bay", "Cantarell", "North Sea", "Permian Basin"}
	refineries = []string{"RefineCo Alpha", "PetroRefine Beta", "Gulf Refinery", "Delta Refinery"}
	ports      = []string{"Port Rashid", "Ras Tanura", "Rotterdam", "Houston Ship Channel"}
	products   = []string{"Gasoline-95", "Diesel B5", "Jet-A1", "Heavy Fuel Oil", "Naphtha"}
	grades     = []string{"Brent", "WTI", "Dubai", "Arab Light"}
	hubs       = []string{"Cushing Hub", "Fujairah Hub", "ARA Hub"}
	stations   = []string{"PetroGas Sta-7", "QuickFuel Sta-12", "EnergyMart Sta-3"}
	sellers    = []string{"UpstreamCo", "OilMajor", "Aramco LLC"}
	buyers     = []string{"RefineGroup", "FuelTrader", "GovOilDesk"}
	dests      = []string{"China", "India", "EU", "Japan"}
)

func pick(r *rand.Rand, list []string) string {
	return list[r.Intn(len(list))]
}

var eventTemplates = []eventTemplate{
	// Upstream: exploration and extraction.
	{tx.KindUpstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Exploration permit issued for Block-%d in %s", 1+r.Intn(99), pick(r, fields))
	}},
	{tx.KindUpstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Seismic survey completed at %s: %dk barrels estimated", pick(r, fields), 100+r.Intn(49900))
	}},
	{tx.KindUpstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Well #%d spudded at %s", 100+r.Intn(900), pick(r, fields))
	}},
	{tx.KindUpstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Well #%d production started: %d bbl/day", 100+r.Intn(900), 100+r.Intn(49900))
	}},
	{tx.KindUpstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Crude extraction report: %d barrels extracted at %s", 100+r.Intn(49900), pick(r, fields))
	}},

	// Midstream: transportation.
	{tx.KindMidstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Pipeline shipment #%d: %d barrels from %s to %s",
			1000+r.Intn(9000), 100+r.Intn(49900), pick(r, fields), pick(r, refineries))
	}},
	{tx.KindMidstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Tanker MT-%d loaded: %d barrels crude, departing %s",
			100+r.Intn(900), 100+r.Intn(49900), pick(r, ports))
	}},
	{tx.KindMidstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Tanker MT-%d arrived at %s: %d barrels unloaded",
			100+r.Intn(900), pick(r, ports), 100+r.Intn(49900))
	}},
	{tx.KindMidstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Pipeline integrity check #%d: status PASS", 100+r.Intn(900))
	}},
	{tx.KindMidstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Storage tank T-%d filled to %d%% capacity at %s",
			1+r.Intn(20), 20+r.Intn(76), pick(r, hubs))
	}},

	// Downstream: refining and distribution.
	{tx.KindDownstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Refinery %s intake: %d barrels crude (grade %s)",
			pick(r, refineries), 100+r.Intn(49900), pick(r, grades))
	}},
	{tx.KindDownstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Refinery %s output: %s - %d barrels",
			pick(r, refineries), pick(r, products), 100+r.Intn(49900))
	}},
	{tx.KindDownstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Quality certificate QC-%d issued for %s batch", 100+r.Intn(900), pick(r, products))
	}},
	{tx.KindDownstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Fuel delivery %d liters of %s to %s",
			100+r.Intn(49900), pick(r, products), pick(r, stations))
	}},
	{tx.KindDownstream, func(r *rand.Rand) string {
		return fmt.Sprintf("Export clearance XP-%d: %d barrels to %s",
			1000+r.Intn(9000), 100+r.Intn(49900), pick(r, dests))
	}},

	// Financial and commercial.
	{tx.KindFinancial, func(r *rand.Rand) string {
		return fmt.Sprintf("Invoice INV-%d: %d bbl @ $%.2f/bbl from %s to %s",
			10000+r.Intn(90000), 100+r.Intn(49900), 60+r.Float64()*50, pick(r, sellers), pick(r, buyers))
	}},
	{tx.KindFinancial, func(r *rand.Rand) string {
		return fmt.Sprintf("Payment confirmed: $%d for INV-%d", 10000+r.Intn(4990000), 10000+r.Intn(90000))
	}},
	{tx.KindFinancial, func(r *rand.Rand) string {
		return fmt.Sprintf("Letter of credit LC-%d opened for $%d", 1000+r.Intn(9000), 10000+r.Intn(4990000))
	}},
	{tx.KindFinancial, func(r *rand.Rand) string {
		return fmt.Sprintf("Royalty payment: $%d to government for Q%d", 10000+r.Intn(4990000), 1+r.Intn(4))
	}},
	{tx.KindFinancial, func(r *rand.Rand) string {
		return fmt.Sprintf("Carbon offset purchase: %d tonnes CO2 credit", 50+r.Intn(4950))
	}},
}

// Generator produces synthetic petroleum supply-chain transactions signed
// with the node's identity and inserted into the pool. Transactions arrive
// either seeded at startup or periodically in the background.
type Generator struct {
	pool      *Pool
	identity  *crypto.Identity
	interval  time.Duration
	rng       *rand.Rand
	broadcast func(*tx.Transaction)

	mu       sync.Mutex // Guards partners; updated while Run is live.
	partners []types.Address
}

// NewGenerator creates a generator. broadcast may be nil; partners are
// known peer addresses used as transaction receivers when present.
func NewGenerator(pool *Pool, identity *crypto.Identity, interval time.Duration, broadcast func(*tx.Transaction)) *Generator {
	return &Generator{
		pool:      pool,
		identity:  identity,
		interval:  interval,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		broadcast: broadcast,
	}
}

// SetPartners sets the receiver address candidates for generated transactions.
func (g *Generator) SetPartners(partners []types.Address) {
	g.mu.Lock()
	g.partners = partners
	g.mu.Unlock()
}

// Generate creates, signs, and inserts one random supply-chain transaction.
func (g *Generator) Generate() (*tx.Transaction, error) {
	tmpl := eventTemplates[g.rng.Intn(len(eventTemplates))]

	receiver := g.randomReceiver()
	transaction, err := tx.NewSigned(g.identity, tmpl.kind, tmpl.build(g.rng), receiver)
	if err != nil {
		return nil, fmt.Errorf("generate transaction: %w", err)
	}

	if err := g.pool.Insert(transaction); err != nil {
		return nil, err
	}
	return transaction, nil
}

// Seed populates the pool with count transactions at startup and returns them.
func (g *Generator) Seed(count int) []*tx.Transaction {
	txs := make([]*tx.Transaction, 0, count)
	for i := 0; i < count; i++ {
		transaction, err := g.Generate()
		if err != nil {
			log.Mempool.Warn().Err(err).Msg("seed transaction rejected")
			continue
		}
		log.Mempool.Info().
			Str("tx", transaction.ID().Short()).
			Str("kind", transaction.Kind.String()).
			Msg("seeded transaction")
		txs = append(txs, transaction)
	}
	return txs
}

// Run generates one transaction per interval until ctx is cancelled,
// invoking the broadcast callback for each so the node can gossip it.
func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			transaction, err := g.Generate()
			if err != nil {
				log.Mempool.Warn().Err(err).Msg("generated transaction rejected")
				continue
			}
			log.Mempool.Info().
				Str("tx", transaction.ID().Short()).
				Str("kind", transaction.Kind.String()).
				Int("pool_size", g.pool.Count()).
				Msg("generated transaction")
			if g.broadcast != nil {
				g.broadcast(transaction)
			}
		}
	}
}

func (g *Generator) randomReceiver() types.Address {
	g.mu.Lock()
	partners := g.partners
	g.mu.Unlock()
	if len(partners) > 0 {
		return partners[g.rng.Intn(len(partners))]
	}
	// Throwaway receiver when no partners are known yet.
	var addr types.Address
	g.rng.Read(addr[:])
	return addr
}
