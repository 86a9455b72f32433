package replica

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/assetsync/internal/asset"
	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/ir"
	"github.com/roach88/assetsync/internal/kind"
	"github.com/roach88/assetsync/internal/materialize"
	"github.com/roach88/assetsync/internal/serializer"
	"github.com/roach88/assetsync/internal/store"
)

// DefaultBatchSize is the number of checksums per transport request.
const DefaultBatchSize = 256

// Transport pulls node bytes from a producer. Checksums the producer cannot
// supply are absent from the result.
type Transport interface {
	Fetch(ctx context.Context, sums []checksum.Checksum) (map[checksum.Checksum][]byte, error)
}

// Stats describes one sync.
type Stats struct {
	Session   string `json:"session"`
	Requested int    `json:"requested"` // checksums asked of the transport
	Fetched   int    `json:"fetched"`   // nodes received and verified
	Skipped   int    `json:"skipped"`   // checksums already stored locally
	Stored    int    `json:"stored"`    // rows newly written
}

// Syncer copies producer trees into a local store.
//
// Thread Safety: concurrent Syncs against the same store are safe; they
// may fetch the same node twice.
type Syncer struct {
	store       *store.Store
	ser         *serializer.Registry
	batchSize   int
	concurrency int
	tokens      TokenGenerator
	logger      *slog.Logger
	matOpts     []materialize.Option
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithBatchSize sets the number of checksums per transport request.
func WithBatchSize(n int) Option {
	return func(s *Syncer) { s.batchSize = n }
}

// WithConcurrency bounds in-flight transport requests.
func WithConcurrency(n int) Option {
	return func(s *Syncer) { s.concurrency = n }
}

// WithTokenGenerator sets the session id source. Default: UUIDv7.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *Syncer) { s.tokens = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

// WithMaterializeOptions passes options to the materializer used by
// Materialize.
func WithMaterializeOptions(opts ...materialize.Option) Option {
	return func(s *Syncer) { s.matOpts = append(s.matOpts, opts...) }
}

// New creates a Syncer writing to st. ser decodes and verifies leaf nodes.
func New(st *store.Store, ser *serializer.Registry, opts ...Option) *Syncer {
	s := &Syncer{
		store:       st,
		ser:         ser,
		batchSize:   DefaultBatchSize,
		concurrency: 4,
		tokens:      UUIDv7Generator{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.batchSize < 1 {
		s.batchSize = DefaultBatchSize
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s
}

// Sync copies every node under root that the store does not have yet and
// records a session. Nothing is written when any node is missing or fails
// verification.
func (s *Syncer) Sync(ctx context.Context, root checksum.Checksum, t Transport) (Stats, error) {
	var stats Stats
	seen := checksum.NewSet(root)
	level := []checksum.Checksum{root}
	var levels [][]store.Record

	for len(level) > 0 {
		missing, err := s.store.Missing(ctx, level)
		if err != nil {
			return stats, err
		}
		stats.Skipped += len(level) - len(missing)
		if len(missing) == 0 {
			break
		}

		nodes, err := s.fetch(ctx, missing, t)
		stats.Requested += len(missing)
		if err != nil {
			return stats, err
		}
		stats.Fetched += len(nodes)

		records := make([]store.Record, 0, len(missing))
		var next []checksum.Checksum
		for _, sum := range missing {
			n := nodes[sum]
			records = append(records, store.Record{Checksum: sum, Kind: n.node.Kind(), Data: n.data})
			c, ok := n.node.(*asset.Collection)
			if !ok {
				continue
			}
			for _, ref := range c.References() {
				if !seen.Has(ref) {
					seen.Add(ref)
					next = append(next, ref)
				}
			}
		}
		levels = append(levels, records)
		level = next
	}

	var ordered []store.Record
	for i := len(levels) - 1; i >= 0; i-- {
		ordered = append(ordered, levels[i]...)
	}
	stored, err := s.store.PutRecords(ctx, ordered)
	if err != nil {
		return stats, err
	}
	stats.Stored = stored

	if err := s.recordSession(ctx, root, &stats); err != nil {
		return stats, err
	}
	s.logger.Info("sync complete",
		"session", stats.Session,
		"root", root.Short(),
		"requested", stats.Requested,
		"fetched", stats.Fetched,
		"skipped", stats.Skipped,
		"stored", stats.Stored,
	)
	return stats, nil
}

type fetched struct {
	node asset.Node
	data []byte
}

// fetch requests sums in batches and verifies every node it receives.
func (s *Syncer) fetch(ctx context.Context, sums []checksum.Checksum, t Transport) (map[checksum.Checksum]fetched, error) {
	var (
		mu  sync.Mutex
		out = make(map[checksum.Checksum]fetched, len(sums))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for start := 0; start < len(sums); start += s.batchSize {
		batch := sums[start:min(start+s.batchSize, len(sums))]
		g.Go(func() error {
			got, err := t.Fetch(gctx, batch)
			if err != nil {
				return fmt.Errorf("fetch %d nodes: %w", len(batch), err)
			}
			verified := make(map[checksum.Checksum]fetched, len(batch))
			for _, sum := range batch {
				data, ok := got[sum]
				if !ok {
					return fmt.Errorf("%w: %s", materialize.ErrMissingAsset, sum)
				}
				n, err := s.verify(gctx, sum, data)
				if err != nil {
					return err
				}
				verified[sum] = fetched{node: n, data: data}
			}
			mu.Lock()
			defer mu.Unlock()
			for sum, f := range verified {
				out[sum] = f
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// verify decodes data and checks that it is the node for sum. Leaf
// payloads are decoded so that their checksum is recomputed.
func (s *Syncer) verify(ctx context.Context, sum checksum.Checksum, data []byte) (asset.Node, error) {
	n, err := asset.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", sum.Short(), err)
	}
	if n.Checksum() != sum {
		return nil, fmt.Errorf("%w: requested %s, received %s", asset.ErrCorruptNode, sum.Short(), n.Checksum().Short())
	}
	if a, ok := n.(*asset.Asset); ok {
		if _, err := a.Decode(ctx, s.ser); err != nil {
			return nil, fmt.Errorf("node %s: %w", sum.Short(), err)
		}
	}
	return n, nil
}

func (s *Syncer) recordSession(ctx context.Context, root checksum.Checksum, stats *Stats) error {
	solution, err := s.solutionID(ctx, root)
	if err != nil {
		return err
	}
	seq, err := s.store.MaxSessionSeq(ctx)
	if err != nil {
		return err
	}
	stats.Session = s.tokens.Generate()
	return s.store.WriteSession(ctx, store.Session{
		ID:        stats.Session,
		Root:      root,
		Solution:  string(solution),
		Seq:       seq + 1,
		Requested: stats.Requested,
		Fetched:   stats.Fetched,
		Skipped:   stats.Skipped,
	})
}

// solutionID reads the solution attributes stored under root.
func (s *Syncer) solutionID(ctx context.Context, root checksum.Checksum) (ir.SolutionID, error) {
	n, err := s.load(ctx, root)
	if err != nil {
		return "", err
	}
	c, ok := n.(*asset.Collection)
	if !ok || c.Kind() != kind.SolutionState || c.Len() == 0 {
		return "", fmt.Errorf("%w: root %s is not a solution", asset.ErrCorruptNode, root.Short())
	}
	n, err = s.load(ctx, c.Child(0).Checksum)
	if err != nil {
		return "", err
	}
	a, ok := n.(*asset.Asset)
	if !ok {
		return "", fmt.Errorf("%w: solution attributes of %s", asset.ErrCorruptNode, root.Short())
	}
	v, err := a.Decode(ctx, s.ser)
	if err != nil {
		return "", err
	}
	attrs, ok := v.(*ir.SolutionAttributes)
	if !ok {
		return "", fmt.Errorf("%w: solution attributes decoded as %T", serializer.ErrTypeMismatch, v)
	}
	return attrs.ID, nil
}

func (s *Syncer) load(ctx context.Context, sum checksum.Checksum) (asset.Node, error) {
	data, ok, err := s.store.Get(ctx, sum)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", materialize.ErrMissingAsset, sum)
	}
	return asset.Unmarshal(data)
}

// Materialize reconstructs the snapshot under root from the local store.
func (s *Syncer) Materialize(ctx context.Context, root checksum.Checksum) (*ir.SolutionInfo, error) {
	opts := append([]materialize.Option{materialize.WithLogger(s.logger)}, s.matOpts...)
	return materialize.New(s.ser, opts...).Solution(ctx, root, s.store)
}
