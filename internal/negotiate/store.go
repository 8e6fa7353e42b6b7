package negotiate

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/WolfverusWasTaken/cheapskate.ai/internal/market"
)

// Store is the flat keyed transcript store, sellerId -> record. It is loaded
// at construction and rewritten after every mutation; the serialized form is
// pretty-printed so it stays human-inspectable.
type Store struct {
	mu      sync.Mutex
	path    string
	records map[string]*Record
}

// NewStore opens or creates the store at path. A missing file is an empty
// store; a corrupt file is logged and discarded rather than blocking startup.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:    path,
		records: make(map[string]*Record),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.records); err != nil {
		log.Printf("Discarding unreadable history %s: %v", path, err)
		s.records = make(map[string]*Record)
	}
	return s, nil
}

// Get returns the record for sellerID, or nil.
func (s *Store) Get(sellerID string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[sellerID]
}

// GetOrCreate resumes an existing conversation or starts a new one. Re-keying
// by the same listing always lands on the same record.
func (s *Store) GetOrCreate(listing market.Listing) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := SellerID(listing.SellerName, listing.Title)
	if rec, ok := s.records[id]; ok {
		return rec
	}
	rec := NewRecord(listing)
	s.records[id] = rec
	return rec
}

// All returns the records sorted by seller ID.
func (s *Store) All() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SellerID < out[j].SellerID })
	return out
}

// Save rewrites the store file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		_ = os.MkdirAll(dir, 0755)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write history %s: %w", s.path, err)
	}
	return nil
}
