// Package file implements the market store as a single JSON document on
// disk: a fixed number of slots keyed by slot number plus the id counter.
// Ids grow without bound while slots recycle, so the store retains only the
// most recent capacity markets; that retention horizon is a deliberate bound
// on an unauthenticated create surface, not an accident. Evicted records are
// handed to an archiver when one is configured.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/osmowager/wagerbot/internal/domain"
)

// DefaultCapacity matches the historical bound of 100 live markets.
const DefaultCapacity = 100

// Slot maps a market id onto its storage slot in {1..capacity}. The mapping
// is periodic: Slot(id+capacity) == Slot(id), so id capacity+1 recycles
// slot 1.
func Slot(id int64, capacity int) int {
	return int((id-1)%int64(capacity)) + 1
}

// document is the on-disk layout. Every mutation rewrites the whole thing.
type document struct {
	Markets   map[string]domain.Market `json:"markets"`
	IDCounter int64                    `json:"id_counter"`
}

// Store is the file-backed domain.MarketStore. All access goes through one
// mutex: the store is the ledger's single-writer serialization point, so two
// concurrent mutations can never interleave their read-modify-write cycles.
type Store struct {
	mu       sync.Mutex
	path     string
	capacity int
	doc      document
	archiver domain.MarketArchiver // optional
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithArchiver installs an archiver that receives markets about to be
// evicted by slot recycling.
func WithArchiver(a domain.MarketArchiver) Option {
	return func(s *Store) { s.archiver = a }
}

// WithCapacity overrides the slot count. Changing capacity on an existing
// document remaps every id to a different slot, so it must only be set
// before first use.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// Open loads the document at path, creating an empty one (counter at 1) if
// the file does not exist yet.
func Open(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		path:     path,
		capacity: DefaultCapacity,
		doc: document{
			Markets:   make(map[string]domain.Market),
			IDCounter: 1,
		},
		logger: logger.With(slog.String("component", "filestore")),
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run; the document is written on the first mutation.
	case err != nil:
		return nil, storageErr("open "+path, err)
	default:
		if err := json.Unmarshal(data, &s.doc); err != nil {
			return nil, storageErr("decode "+path, err)
		}
		if s.doc.Markets == nil {
			s.doc.Markets = make(map[string]domain.Market)
		}
		if s.doc.IDCounter < 1 {
			s.doc.IDCounter = 1
		}
	}

	s.logger.Info("market store opened",
		slog.String("path", path),
		slog.Int("capacity", s.capacity),
		slog.Int("markets", len(s.doc.Markets)),
		slog.Int64("id_counter", s.doc.IDCounter),
	)
	return s, nil
}

// NextID reserves the next market id. The reservation is durable before the
// id is handed out, so a crash cannot reissue it.
func (s *Store) NextID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.doc.IDCounter
	s.doc.IDCounter = id + 1
	if err := s.persist(); err != nil {
		s.doc.IDCounter = id
		return 0, err
	}
	return id, nil
}

// Get returns the market with the given id. The slot may be empty or hold a
// newer market whose id collides onto the same slot, so the stored record's
// own id is always checked against the requested one.
func (s *Store) Get(ctx context.Context, id int64) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *Store) getLocked(id int64) (domain.Market, error) {
	if id < 1 {
		return domain.Market{}, domain.NewFault(domain.ErrNotFound, "market %d", id)
	}
	m, ok := s.doc.Markets[s.slotKey(id)]
	if !ok || m.ID != id {
		return domain.Market{}, domain.NewFault(domain.ErrNotFound, "market %d", id)
	}
	return cloneMarket(m), nil
}

// Put upserts the market into its slot, archiving any different market that
// previously occupied it.
func (s *Store) Put(ctx context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.slotKey(m.ID)
	if prev, ok := s.doc.Markets[key]; ok && prev.ID != m.ID {
		s.archiveEvicted(ctx, prev)
	}

	s.doc.Markets[key] = cloneMarket(m)
	return s.persist()
}

// Update applies fn to the stored market and persists the result. The whole
// read-modify-write cycle runs under the store lock, so fn observes the
// latest state and no concurrent update is lost.
func (s *Store) Update(ctx context.Context, id int64, fn func(*domain.Market) error) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.getLocked(id)
	if err != nil {
		return domain.Market{}, err
	}
	if err := fn(&m); err != nil {
		return domain.Market{}, err
	}
	s.doc.Markets[s.slotKey(id)] = cloneMarket(m)
	if err := s.persist(); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// ListAll returns every stored market ordered by id.
func (s *Store) ListAll(ctx context.Context) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Market, 0, len(s.doc.Markets))
	for _, m := range s.doc.Markets {
		out = append(out, cloneMarket(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListActive returns stored markets still open, ordered by id. Markets past
// their lock time are included: locked markets reject new entries but are
// still live until settled or cancelled.
func (s *Store) ListActive(ctx context.Context) ([]domain.Market, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, m := range all {
		if m.State == domain.StateOpen {
			active = append(active, m)
		}
	}
	return active, nil
}

func (s *Store) slotKey(id int64) string {
	return strconv.Itoa(Slot(id, s.capacity))
}

// archiveEvicted offers the outgoing record to the archiver. Archival is
// best effort: the slot is recycled whether or not the upload succeeds.
func (s *Store) archiveEvicted(ctx context.Context, m domain.Market) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.ArchiveMarket(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "evicted market not archived",
			slog.Int64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.InfoContext(ctx, "evicted market archived",
		slog.Int64("market_id", m.ID),
	)
}

// persist writes the whole document to a temp file and renames it into
// place, so readers never observe a torn write. Called with s.mu held.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return storageErr("encode document", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".wagerbot-*")
	if err != nil {
		return storageErr("create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return storageErr("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return storageErr("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return storageErr("close temp file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return storageErr("rename into place", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("filestore: %s: %v: %w", op, err, domain.ErrStorage)
}

// cloneMarket returns a copy whose participant slice does not alias the
// stored one, so callers cannot mutate the document behind the lock.
func cloneMarket(m domain.Market) domain.Market {
	cp := m
	if m.Participants != nil {
		cp.Participants = append([]domain.Entry(nil), m.Participants...)
	}
	if m.Options != nil {
		cp.Options = append([]string(nil), m.Options...)
	}
	return cp
}

// Compile-time interface check.
var _ domain.MarketStore = (*Store)(nil)
