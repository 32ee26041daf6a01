package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"scanhub/internal/pairing"
	"scanhub/pkg/platform/sentinel"
)

// MemoryStore keeps pairing records in process memory. It backs unit tests and
// dev mode; it intentionally favors clarity over performance.
type MemoryStore struct {
	// txMu serializes InTx bodies so a find-and-mark plus insert pair is
	// atomic with respect to concurrent commits, mirroring the transactional
	// guarantee of the Postgres store.
	txMu sync.Mutex

	mu      sync.RWMutex
	records []*pairing.Record
	nextID  int64
}

func NewMemory() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}

func (s *MemoryStore) FindAndMarkOverwritten(_ context.Context, product int64) (*pairing.Prior, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := s.latestForProduct(product)
	if latest == nil {
		return nil, nil
	}
	latest.Overwrite = true
	return &pairing.Prior{ID: latest.ID, Platform: latest.Platform}, nil
}

func (s *MemoryStore) Insert(_ context.Context, rec *pairing.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *rec
	stored.ID = s.nextID
	s.nextID++
	stored.Overwrite = false
	stored.SyncStatus = pairing.SyncPending
	s.records = append(s.records, &stored)
	return stored.ID, nil
}

func (s *MemoryStore) UpdateSyncStatus(_ context.Context, id int64, status pairing.SyncStatus, diagnostic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id {
			rec.SyncStatus = status
			if diagnostic != "" {
				d := diagnostic
				rec.SyncError = &d
			} else {
				rec.SyncError = nil
			}
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *MemoryStore) FindLatestForIdentity(_ context.Context, identityKey string) (*pairing.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *pairing.Record
	for _, rec := range s.records {
		if rec.IdentityKey != identityKey {
			continue
		}
		if latest == nil || rec.ScannedAt.After(latest.ScannedAt) ||
			(rec.ScannedAt.Equal(latest.ScannedAt) && rec.ID > latest.ID) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *MemoryStore) List(_ context.Context, f pairing.Filter) ([]*pairing.Record, error) {
	s.mu.RLock()
	matched := s.match(f)
	s.mu.RUnlock()

	sortRecords(matched, f.SortField, f.SortAsc)

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []*pairing.Record{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (s *MemoryStore) Count(_ context.Context, f pairing.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.match(f)), nil
}

func (s *MemoryStore) Charts(_ context.Context, f pairing.Filter) (*pairing.ChartData, error) {
	s.mu.RLock()
	matched := s.match(f)
	s.mu.RUnlock()

	data := &pairing.ChartData{
		ByDate:     []pairing.DateCount{},
		ByIdentity: []pairing.IdentityCount{},
		ByPlatform: []pairing.PlatformCount{},
	}
	byDate := map[string]int{}
	byIdentity := map[string]int{}
	byPlatform := map[int64]int{}
	for _, rec := range matched {
		data.Summary.Total++
		if rec.Overwrite {
			data.Summary.Overwrites++
		}
		if rec.SyncStatus == pairing.SyncFailure {
			data.Summary.Errors++
		}
		byDate[rec.ScannedAt.Format("2006-01-02")]++
		byIdentity[rec.IdentityKey]++
		byPlatform[rec.Platform]++
	}
	for date, count := range byDate {
		data.ByDate = append(data.ByDate, pairing.DateCount{Date: date, Count: count})
	}
	sort.Slice(data.ByDate, func(i, j int) bool { return data.ByDate[i].Date < data.ByDate[j].Date })
	for identity, count := range byIdentity {
		data.ByIdentity = append(data.ByIdentity, pairing.IdentityCount{Identity: identity, Count: count})
	}
	sort.Slice(data.ByIdentity, func(i, j int) bool {
		if data.ByIdentity[i].Count != data.ByIdentity[j].Count {
			return data.ByIdentity[i].Count > data.ByIdentity[j].Count
		}
		return data.ByIdentity[i].Identity < data.ByIdentity[j].Identity
	})
	if len(data.ByIdentity) > 10 {
		data.ByIdentity = data.ByIdentity[:10]
	}
	for platform, count := range byPlatform {
		data.ByPlatform = append(data.ByPlatform, pairing.PlatformCount{Platform: platform, Count: count})
	}
	sort.Slice(data.ByPlatform, func(i, j int) bool {
		if data.ByPlatform[i].Count != data.ByPlatform[j].Count {
			return data.ByPlatform[i].Count > data.ByPlatform[j].Count
		}
		return data.ByPlatform[i].Platform < data.ByPlatform[j].Platform
	})
	return data, nil
}

func (s *MemoryStore) latestForProduct(product int64) *pairing.Record {
	var latest *pairing.Record
	for _, rec := range s.records {
		if rec.Product != product {
			continue
		}
		if latest == nil || rec.ScannedAt.After(latest.ScannedAt) ||
			(rec.ScannedAt.Equal(latest.ScannedAt) && rec.ID > latest.ID) {
			latest = rec
		}
	}
	return latest
}

func (s *MemoryStore) match(f pairing.Filter) []*pairing.Record {
	var matched []*pairing.Record
	for _, rec := range s.records {
		if f.ID != nil {
			if rec.ID == *f.ID {
				copied := *rec
				return []*pairing.Record{&copied}
			}
			continue
		}
		if f.Platform != nil && rec.Platform != *f.Platform {
			continue
		}
		if f.IdentityKey != "" && !strings.Contains(
			strings.ToLower(rec.IdentityKey), strings.ToLower(f.IdentityKey)) {
			continue
		}
		if f.Product != nil && rec.Product != *f.Product {
			continue
		}
		if f.SyncStatus != nil && rec.SyncStatus != *f.SyncStatus {
			continue
		}
		if f.Overwrite != nil && rec.Overwrite != *f.Overwrite {
			continue
		}
		if f.From != nil && rec.ScannedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && rec.ScannedAt.After(*f.To) {
			continue
		}
		copied := *rec
		matched = append(matched, &copied)
	}
	return matched
}

func sortRecords(records []*pairing.Record, field string, asc bool) {
	less := func(i, j *pairing.Record) bool {
		switch field {
		case "id":
			return i.ID < j.ID
		case "identity":
			return i.IdentityKey < j.IdentityKey
		case "platform":
			return i.Platform < j.Platform
		case "product":
			return i.Product < j.Product
		case "syncStatus":
			return i.SyncStatus < j.SyncStatus
		default:
			if !i.ScannedAt.Equal(j.ScannedAt) {
				return i.ScannedAt.Before(j.ScannedAt)
			}
			return i.ID < j.ID
		}
	}
	sort.SliceStable(records, func(a, b int) bool {
		if asc {
			return less(records[a], records[b])
		}
		return less(records[b], records[a])
	})
}
