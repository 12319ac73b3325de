package fraud

import (
	"context"
	"sort"
	"sync"
)

// profileEntry guards one user's profile
type profileEntry struct {
	mu      sync.Mutex
	profile *BehavioralProfile
}

// MemoryProfileStore is an in-memory ProfileStore for tests and single-node use.
// Each user gets its own lock so appends for different users never contend.
type MemoryProfileStore struct {
	entries sync.Map // userID → *profileEntry
}

// NewMemoryProfileStore creates an empty in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{}
}

func (s *MemoryProfileStore) entry(userID string) *profileEntry {
	v, _ := s.entries.LoadOrStore(userID, &profileEntry{})
	return v.(*profileEntry)
}

func (s *MemoryProfileStore) Get(ctx context.Context, userID string) (*BehavioralProfile, error) {
	v, ok := s.entries.Load(userID)
	if !ok {
		return nil, nil
	}
	e := v.(*profileEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profile == nil {
		return nil, nil
	}
	return copyProfile(e.profile), nil
}

func (s *MemoryProfileStore) Append(ctx context.Context, userID string, sample BehaviorSample, policy RetentionPolicy) (*BehavioralProfile, error) {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.profile == nil {
		e.profile = &BehavioralProfile{UserID: userID}
	}
	samples := append(append([]BehaviorSample(nil), e.profile.Samples...), sample)
	e.profile.Samples = policy.Apply(samples)
	e.profile.LastUpdated = sample.ObservedAt

	return copyProfile(e.profile), nil
}

func (s *MemoryProfileStore) Count(ctx context.Context) (int64, error) {
	var n int64
	s.entries.Range(func(_, v any) bool {
		e := v.(*profileEntry)
		e.mu.Lock()
		if e.profile != nil {
			n++
		}
		e.mu.Unlock()
		return true
	})
	return n, nil
}

func copyProfile(p *BehavioralProfile) *BehavioralProfile {
	cp := *p
	cp.Samples = append([]BehaviorSample(nil), p.Samples...)
	return &cp
}

// MemoryDeviceStore is an in-memory DeviceStore.
type MemoryDeviceStore struct {
	mu      sync.Mutex
	devices map[string]DeviceFingerprint
}

// NewMemoryDeviceStore creates an empty in-memory device store.
func NewMemoryDeviceStore() *MemoryDeviceStore {
	return &MemoryDeviceStore{devices: make(map[string]DeviceFingerprint)}
}

func (s *MemoryDeviceStore) Swap(ctx context.Context, userID string, fp DeviceFingerprint) (*DeviceFingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fp.Location != nil {
		loc := *fp.Location
		fp.Location = &loc
	}
	prev, ok := s.devices[userID]
	s.devices[userID] = fp
	if !ok {
		return nil, nil
	}
	return &prev, nil
}

func (s *MemoryDeviceStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.devices)), nil
}

// MemoryBlacklistStore is an in-memory BlacklistStore.
type MemoryBlacklistStore struct {
	mu  sync.RWMutex
	ips map[string]struct{}
}

// NewMemoryBlacklistStore creates an empty in-memory blacklist.
func NewMemoryBlacklistStore() *MemoryBlacklistStore {
	return &MemoryBlacklistStore{ips: make(map[string]struct{})}
}

func (s *MemoryBlacklistStore) Add(ctx context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ips[ip] = struct{}{}
	return nil
}

func (s *MemoryBlacklistStore) Remove(ctx context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ips, ip)
	return nil
}

func (s *MemoryBlacklistStore) Contains(ctx context.Context, ip string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ips[ip]
	return ok, nil
}

func (s *MemoryBlacklistStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.ips))
	for ip := range s.ips {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryBlacklistStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.ips)), nil
}

// NewMemoryStores wires the in-memory backends together.
func NewMemoryStores() Stores {
	return Stores{
		Profiles:  NewMemoryProfileStore(),
		Devices:   NewMemoryDeviceStore(),
		Blacklist: NewMemoryBlacklistStore(),
	}
}
