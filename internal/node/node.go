// Package node wires the Petronet components into a running ledger
// node: storage, chain, mempool, miner, and the p2p layer, with the
// startup order the protocol requires (register, seed, sync, drain,
// mine).
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/petronet-labs/petronet-chain/config"
	"github.com/petronet-labs/petronet-chain/internal/chain"
	klog "github.com/petronet-labs/petronet-chain/internal/log"
	"github.com/petronet-labs/petronet-chain/internal/mempool"
	"github.com/petronet-labs/petronet-chain/internal/miner"
	"github.com/petronet-labs/petronet-chain/internal/p2p"
	"github.com/petronet-labs/petronet-chain/internal/storage"
	"github.com/petronet-labs/petronet-chain/pkg/block"
	"github.com/petronet-labs/petronet-chain/pkg/crypto"
	"github.com/petronet-labs/petronet-chain/pkg/tx"
	"github.com/petronet-labs/petronet-chain/pkg/types"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
)

// Node is a fully-initialized Petronet ledger node.
type Node struct {
	cfg      *config.Config
	genesis  *config.Genesis
	logger   zerolog.Logger
	identity *crypto.Identity

	// Core
	db     storage.DB
	ownsDB bool
	ch     *chain.Chain
	pool   *mempool.Pool
	gen    *mempool.Generator
	mn     *miner.Miner // nil when mining is disabled

	// Networking
	p2pNode  *p2p.Node // nil when p2p is disabled
	syncer   *p2p.Syncer
	liveness *p2p.Liveness

	// Blocks received before the chain is caught up.
	pending *pendingQueue
	syncing atomic.Bool

	// Sender addresses learned from gossip, fed to the generator as
	// transaction receivers.
	partnersMu sync.Mutex
	partners   map[types.Address]struct{}

	// Cancel func for the mining round in flight, nil between rounds.
	mineMu     sync.Mutex
	mineCancel context.CancelFunc

	// Peers that failed the genesis handshake since the last match.
	genesisMismatches atomic.Int64

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a Node over a BadgerDB at the configured
// data directory. identity may be nil, in which case the node runs
// with a fresh ephemeral signing identity. Background activity starts
// with Start().
func New(cfg *config.Config, identity *crypto.Identity) (*Node, error) {
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = logsDir + "/petronet.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	db, err := storage.NewBadger(cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.DBDir(), err)
	}

	n, err := newNode(cfg, identity, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	n.ownsDB = true
	return n, nil
}

// newNode builds a node over an already-open database. Kept separate
// from New so tests can run against a MemoryDB.
func newNode(cfg *config.Config, identity *crypto.Identity, db storage.DB) (*Node, error) {
	logger := klog.WithComponent("node")
	genesis := config.GenesisFor(cfg.Network)

	var err error
	if identity == nil {
		identity, err = crypto.NewIdentity()
		if err != nil {
			return nil, fmt.Errorf("generate node identity: %w", err)
		}
		logger.Info().Str("address", identity.Addr.Short()).Msg("running with ephemeral identity")
	}

	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Str("address", identity.Addr.Short()).
		Msg("starting Petronet node")

	// Chain. A genesis mismatch against the stored chain is fatal: the
	// node is pointed at a database for a different network.
	ch, err := chain.New(db, genesis.Protocol.TimestampWindow())
	if err != nil {
		return nil, fmt.Errorf("open chain: %w", err)
	}
	if err := ch.InitFromGenesis(genesis); err != nil {
		return nil, err
	}
	if ch.Height() > 0 {
		logger.Info().
			Uint64("height", ch.Height()).
			Str("tip", ch.TipHash().Short()).
			Msg("chain resumed from database")
	}

	pool := mempool.New(cfg.Mempool.MaxSize)

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:      cfg,
		genesis:  genesis,
		logger:   logger,
		identity: identity,
		db:       db,
		ch:       ch,
		pool:     pool,
		pending:  newPendingQueue(),
		partners: make(map[types.Address]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	n.gen = mempool.NewGenerator(pool, identity, cfg.Mempool.GenInterval, n.broadcastTx)

	// Fork resolution returns abandoned-branch transactions to the pool.
	ch.SetRevertedTxHandler(func(txs []*tx.Transaction) {
		reinserted := 0
		for _, t := range txs {
			if err := pool.Insert(t); err == nil {
				reinserted++
			}
		}
		if reinserted > 0 {
			logger.Info().
				Int("reverted", len(txs)).
				Int("reinserted", reinserted).
				Msg("reverted transactions returned to mempool")
		}
	})

	if cfg.Mining.Enabled {
		n.mn, err = miner.New(cfg.Mining.HashPower, cfg.Mining.Interarrival, identity.Addr)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("create miner: %w", err)
		}
		logger.Info().
			Float64("hash_power_pct", cfg.Mining.HashPower).
			Dur("interarrival", cfg.Mining.Interarrival).
			Float64("lambda", n.mn.Lambda()).
			Msg("block production enabled")
	}

	if cfg.P2P.Enabled {
		n.setupP2P()
	} else {
		logger.Warn().Msg("p2p disabled by config; node will run offline")
	}

	return n, nil
}

// setupP2P constructs the p2p node and wires the gossip, sync, and
// liveness machinery to the chain and mempool.
func (n *Node) setupP2P() {
	cfg := n.cfg
	n.p2pNode = p2p.New(p2p.Config{
		ListenAddr: cfg.P2P.ListenAddr,
		Port:       cfg.P2P.Port,
		Seeds:      cfg.P2P.Seeds,
		MaxPeers:   cfg.P2P.MaxPeers,
		NoDiscover: cfg.P2P.NoDiscover,
		DB:         n.db,
		DHTServer:  cfg.P2P.DHTServer,
		NetworkID:  n.genesis.ChainID,
		DataDir:    cfg.ChainDataDir(),
	})

	n.p2pNode.SetGenesisHash(n.ch.GenesisHash())
	n.p2pNode.SetHeightFn(n.ch.Height)
	n.p2pNode.SetGenesisMismatchHandler(func(id peer.ID) {
		count := n.genesisMismatches.Add(1)
		if n.p2pNode.PeerCount() == 0 {
			// Every peer we reached disagrees on genesis. The local
			// chain state cannot be reconciled; surface it loudly.
			n.logger.Error().
				Int64("mismatched_peers", count).
				Str("genesis", n.ch.GenesisHash().Short()).
				Msg("genesis mismatch with all reachable peers; local chain state may be corrupt, operator intervention required")
		}
	})

	n.p2pNode.SetTxHandler(n.handleGossipTx)
	n.p2pNode.SetBlockHandler(n.handleGossipBlock)

	// The syncer is constructed in Start, once the libp2p host exists.
	n.liveness = p2p.NewLiveness(n.p2pNode, cfg.Liveness.PingInterval, cfg.Liveness.MissThreshold)
}

// Start begins node operation in the protocol's strict order:
// register with a seed quorum, seed the mempool and start the
// generator, sync the chain, drain blocks buffered during sync, and
// finally enter the mine loop.
func (n *Node) Start() error {
	if n.p2pNode != nil {
		if err := n.p2pNode.Start(); err != nil {
			return fmt.Errorf("start p2p: %w", err)
		}

		syncer := p2p.NewSyncer(n.p2pNode)
		n.syncer = syncer
		syncer.RegisterHandler(func(from uint64, max uint32) []*block.Block {
			blocks, err := n.ch.BlocksFrom(from, int(max))
			if err != nil {
				n.logger.Warn().Err(err).Uint64("from", from).Msg("sync request read failed")
				return nil
			}
			return blocks
		})
		syncer.RegisterHeightHandler(func() (uint64, string) {
			return n.ch.Height(), n.ch.TipHash().String()
		})

		// A freshly connected peer may be ahead; probe instead of
		// waiting for the next periodic check.
		n.p2pNode.SetPeerConnectedHandler(n.syncIfBehind)

		// (1) Register with the seed layer. A majority of seeds must
		// answer before the node trusts the peer list.
		if len(n.cfg.P2P.Seeds) > 0 {
			addrs, err := n.p2pNode.RegisterWithSeeds(n.ctx)
			if err != nil {
				return fmt.Errorf("seed registration: %w", err)
			}
			connected := n.p2pNode.ConnectToAddrs(n.ctx, addrs)
			n.logger.Info().
				Int("advertised", len(addrs)).
				Int("connected", connected).
				Msg("adopted registry peer list")
		}

		n.liveness.RegisterHandler()
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.liveness.Run(n.ctx)
		}()
	}

	// (2) Seed the mempool and start the background generator.
	if n.cfg.Mempool.Generate {
		for _, t := range n.gen.Seed(n.cfg.Mempool.SeedCount) {
			n.broadcastTx(t)
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.gen.Run(n.ctx)
		}()
	}

	// (3) Initial block download. Mining has not started yet, so the
	// suspension requirement holds by construction; gossip blocks that
	// arrive meanwhile land in the pending queue.
	if n.p2pNode != nil {
		n.syncing.Store(true)
		n.runSync()
		n.drainPending()
		n.syncing.Store(false)
		// (4) Flush blocks that raced the flag flip.
		n.drainPending()

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runSyncLoop()
		}()
	}

	// (5) Mine loop.
	if n.mn != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runMineLoop()
		}()
	}

	n.logger.Info().
		Uint64("height", n.ch.Height()).
		Str("tip", n.ch.TipHash().Short()).
		Bool("mining", n.mn != nil).
		Msg("node started")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	n.cancel()
	n.abortMining()
	n.wg.Wait()

	if n.p2pNode != nil {
		n.p2pNode.Stop()
	}
	if n.ownsDB && n.db != nil {
		n.db.Close()
	}
	n.logger.Info().Msg("node stopped")
}

// ── Gossip handlers ─────────────────────────────────────────────────

// handleGossipTx inserts a gossip-received transaction into the pool.
// Signature verification already ran in the p2p topic validator;
// Insert verifies again and is an idempotent no-op on duplicates.
func (n *Node) handleGossipTx(from peer.ID, data []byte) {
	var t tx.Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		n.logger.Debug().Err(err).Msg("unmarshal gossip tx")
		return
	}
	if n.ch.HasTx(t.ID()) {
		return // already committed on chain
	}
	if err := n.pool.Insert(&t); err != nil {
		n.logger.Debug().Err(err).Str("tx", t.ID().Short()).Msg("gossip tx rejected")
		return
	}
	n.notePartner(t.SenderAddr)
	n.logger.Debug().
		Str("tx", t.ID().Short()).
		Str("kind", t.Kind.String()).
		Str("from", from.String()).
		Msg("transaction added from gossip")
}

// maxPartners caps the receiver candidate set fed to the generator.
const maxPartners = 64

// notePartner records a gossip tx sender as a known supply-chain
// participant and refreshes the generator's receiver candidates, so
// generated events start addressing real peers instead of throwaway
// addresses.
func (n *Node) notePartner(addr types.Address) {
	if addr == n.identity.Addr || addr.IsZero() {
		return
	}
	n.partnersMu.Lock()
	if _, ok := n.partners[addr]; ok || len(n.partners) >= maxPartners {
		n.partnersMu.Unlock()
		return
	}
	n.partners[addr] = struct{}{}
	list := make([]types.Address, 0, len(n.partners))
	for a := range n.partners {
		list = append(list, a)
	}
	n.partnersMu.Unlock()
	n.gen.SetPartners(list)
}

// handleGossipBlock routes a gossip-received block: buffered while the
// node is syncing, otherwise applied to the chain.
func (n *Node) handleGossipBlock(from peer.ID, data []byte) {
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		n.logger.Debug().Err(err).Msg("unmarshal gossip block")
		return
	}
	if n.syncing.Load() {
		n.pending.Push(&blk)
		n.logger.Debug().
			Uint64("height", blk.Header.Height).
			Int("pending", n.pending.Len()).
			Msg("block buffered during sync")
		return
	}
	n.applyBlock(&blk)
}

// applyBlock submits a block to the chain and reacts to the verdict:
// a tip extension aborts the current mining round, a fork block goes
// through longest-chain resolution, an orphan triggers a resync.
func (n *Node) applyBlock(blk *block.Block) {
	err := n.ch.Append(blk)
	switch {
	case err == nil:
		n.pool.Remove(blk.TxIDs())
		n.logger.Info().
			Uint64("height", blk.Header.Height).
			Str("hash", blk.Hash().Short()).
			Int("txs", len(blk.Transactions)).
			Msg("block received and applied")
		// The round in flight was extending the old tip.
		n.abortMining()
	case errors.Is(err, chain.ErrKnownBlock):
		// Dedup already happened in gossip; a known block here is a
		// sync/pending overlap. Nothing to do.
	case errors.Is(err, chain.ErrForkBlock):
		n.resolveFork(blk)
	case errors.Is(err, chain.ErrOrphanBlock):
		n.logger.Info().
			Uint64("height", blk.Header.Height).
			Msg("orphan block received, triggering resync")
		n.triggerResync()
	default:
		// Validation failure: drop, never store, never relay further.
		n.logger.Warn().Err(err).Uint64("height", blk.Header.Height).Msg("block rejected")
	}
}

// resolveFork reconstructs the competing branch ending at blk from
// stored side blocks and offers it to the chain. Only a strictly
// longer branch is adopted; adoption aborts the mining round.
func (n *Node) resolveFork(blk *block.Block) {
	branch := []*block.Block{blk}
	for {
		first := branch[0]
		if first.Header.Height == 0 {
			n.logger.Warn().Msg("fork branch reaches genesis, ignoring")
			return
		}
		parentHeight := first.Header.Height - 1
		if active, err := n.ch.GetBlockByHeight(parentHeight); err == nil && active.Hash() == first.Header.PrevHash {
			break // branch attaches to the active chain
		}
		parent, err := n.ch.GetBlock(first.Header.PrevHash)
		if err != nil {
			// Side-block history is incomplete; fall back to a sync.
			n.logger.Info().
				Str("missing", first.Header.PrevHash.Short()).
				Msg("fork ancestor unknown, triggering resync")
			n.triggerResync()
			return
		}
		branch = append([]*block.Block{parent}, branch...)
	}

	err := n.ch.Resolve(branch)
	switch {
	case err == nil:
		for _, b := range branch {
			n.pool.Remove(b.TxIDs())
		}
		n.abortMining()
	case errors.Is(err, chain.ErrNotLonger):
		n.logger.Debug().
			Uint64("branch_tip", blk.Header.Height).
			Uint64("height", n.ch.Height()).
			Msg("competing branch not longer, keeping local chain")
	default:
		n.logger.Warn().Err(err).Msg("fork resolution failed")
	}
}

// broadcastTx pushes a locally created transaction into gossip.
func (n *Node) broadcastTx(t *tx.Transaction) {
	if n.p2pNode == nil {
		return
	}
	if err := n.p2pNode.BroadcastTx(t); err != nil {
		n.logger.Debug().Err(err).Str("tx", t.ID().Short()).Msg("tx broadcast failed")
	}
}

// ── Accessors ───────────────────────────────────────────────────────

// Height returns the current chain height.
func (n *Node) Height() uint64 { return n.ch.Height() }

// TipHash returns the current chain tip hash.
func (n *Node) TipHash() types.Hash { return n.ch.TipHash() }

// Address returns the node's signing address.
func (n *Node) Address() types.Address { return n.identity.Addr }

// PoolCount returns the number of pending transactions.
func (n *Node) PoolCount() int { return n.pool.Count() }

// PeerCount returns the number of connected peers, 0 when p2p is off.
func (n *Node) PeerCount() int {
	if n.p2pNode == nil {
		return 0
	}
	return n.p2pNode.PeerCount()
}

// P2PAddrs returns this node's reachable multiaddrs.
func (n *Node) P2PAddrs() []string {
	if n.p2pNode == nil {
		return nil
	}
	return n.p2pNode.Addrs()
}
