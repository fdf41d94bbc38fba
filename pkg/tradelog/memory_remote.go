package tradelog

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// MemoryRemote is an in-process RemoteStore. Callbacks run synchronously on
// the writer's goroutine after the store lock is released.
type MemoryRemote struct {
	mu      sync.Mutex
	docs    map[string]map[string]Record
	subs    map[string]memorySub
	failErr error

	batchCalls atomic.Int64
	setCalls   atomic.Int64
}

type memorySub struct {
	uid  string
	date string // empty for collection subscriptions
	fn   func(DocumentChange)
}

// NewMemoryRemote returns an empty store.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		docs: map[string]map[string]Record{},
		subs: map[string]memorySub{},
	}
}

// FailWith makes every subsequent call return err until cleared with nil.
func (m *MemoryRemote) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// BatchCalls returns how many GetDocuments calls were served.
func (m *MemoryRemote) BatchCalls() int64 {
	return m.batchCalls.Load()
}

// SetCalls returns how many SetDocument calls were served.
func (m *MemoryRemote) SetCalls() int64 {
	return m.setCalls.Load()
}

func (m *MemoryRemote) GetDocument(ctx context.Context, uid, date string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	rec, ok := m.docs[uid][date]
	if !ok {
		return nil, nil
	}
	clone := rec.Clone()
	return &clone, nil
}

func (m *MemoryRemote) SetDocument(ctx context.Context, uid, date string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.setCalls.Add(1)
	m.mu.Lock()
	if m.failErr != nil {
		err := m.failErr
		m.mu.Unlock()
		return err
	}
	if m.docs[uid] == nil {
		m.docs[uid] = map[string]Record{}
	}
	change := ChangeModified
	if _, ok := m.docs[uid][date]; !ok {
		change = ChangeAdded
	}
	rec.normalize()
	m.docs[uid][date] = rec.Clone()
	subs := m.matching(uid, date)
	m.mu.Unlock()

	for _, fn := range subs {
		clone := rec.Clone()
		fn(DocumentChange{Type: change, Date: date, Record: &clone})
	}
	return nil
}

func (m *MemoryRemote) DeleteDocument(ctx context.Context, uid, date string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.failErr != nil {
		err := m.failErr
		m.mu.Unlock()
		return err
	}
	if _, ok := m.docs[uid][date]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.docs[uid], date)
	subs := m.matching(uid, date)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(DocumentChange{Type: ChangeRemoved, Date: date})
	}
	return nil
}

func (m *MemoryRemote) ListDocuments(ctx context.Context, uid string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	dates := make([]string, 0, len(m.docs[uid]))
	for d := range m.docs[uid] {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates, nil
}

func (m *MemoryRemote) GetDocuments(ctx context.Context, uid string, dates []string) (map[string]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkBatch(dates); err != nil {
		return nil, err
	}
	m.batchCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	out := map[string]Record{}
	for _, d := range dates {
		if rec, ok := m.docs[uid][d]; ok {
			out[d] = rec.Clone()
		}
	}
	return out, nil
}

func (m *MemoryRemote) SubscribeDocument(uid, date string, fn func(DocumentChange)) (Unsubscribe, error) {
	return m.subscribe(memorySub{uid: uid, date: date, fn: fn}, nil), nil
}

func (m *MemoryRemote) SubscribeCollection(uid string, fn func(DocumentChange)) (Unsubscribe, error) {
	m.mu.Lock()
	var replay []DocumentChange
	for _, d := range sortedDates(m.docs[uid]) {
		rec := m.docs[uid][d].Clone()
		replay = append(replay, DocumentChange{Type: ChangeAdded, Date: d, Record: &rec})
	}
	m.mu.Unlock()
	return m.subscribe(memorySub{uid: uid, fn: fn}, replay), nil
}

func (m *MemoryRemote) subscribe(sub memorySub, replay []DocumentChange) Unsubscribe {
	id := uuid.NewString()
	m.mu.Lock()
	m.subs[id] = sub
	m.mu.Unlock()

	for _, change := range replay {
		sub.fn(change)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
		})
	}
}

// matching must be called with m.mu held.
func (m *MemoryRemote) matching(uid, date string) []func(DocumentChange) {
	var out []func(DocumentChange)
	for _, sub := range m.subs {
		if sub.uid != uid {
			continue
		}
		if sub.date == "" || sub.date == date {
			out = append(out, sub.fn)
		}
	}
	return out
}

func sortedDates(docs map[string]Record) []string {
	dates := make([]string, 0, len(docs))
	for d := range docs {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
