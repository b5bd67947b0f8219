package billing

import (
	"context"
	"sort"
	"sync"

	"github.com/ManuelReschke/FormFox/app/models"
)

// memStore is an in-memory Store. Transactions are serialized and only
// committed when fn returns nil.
type memStore struct {
	mu        sync.Mutex
	nextID    uint
	schools   map[uint]models.School
	events    map[string]models.BillingWebhookEvent
	failSaves int
	saveErr   error
}

func newMemStore(schools ...models.School) *memStore {
	m := &memStore{
		schools: make(map[uint]models.School),
		events:  make(map[string]models.BillingWebhookEvent),
	}
	for _, s := range schools {
		m.add(s)
	}
	return m
}

func (m *memStore) add(s models.School) uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		m.nextID++
		s.ID = m.nextID
	} else if s.ID > m.nextID {
		m.nextID = s.ID
	}
	m.schools[s.ID] = s
	return s.ID
}

func (m *memStore) school(id uint) models.School {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schools[id]
}

func (m *memStore) event(id string) (models.BillingWebhookEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	return ev, ok
}

func (m *memStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		store:   m,
		schools: make(map[uint]models.School, len(m.schools)),
		events:  make(map[string]models.BillingWebhookEvent, len(m.events)),
	}
	for k, v := range m.schools {
		tx.schools[k] = v
	}
	for k, v := range m.events {
		tx.events[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.schools = tx.schools
	m.events = tx.events
	return nil
}

type memTx struct {
	store   *memStore
	schools map[uint]models.School
	events  map[string]models.BillingWebhookEvent
}

func (t *memTx) ClaimEvent(record *models.BillingWebhookEvent) (bool, error) {
	key := record.Provider + "/" + record.ProviderEventID
	if _, ok := t.events[key]; ok {
		return false, nil
	}
	t.events[key] = *record
	return true, nil
}

func (t *memTx) SaveEvent(record *models.BillingWebhookEvent) error {
	t.events[record.Provider+"/"+record.ProviderEventID] = *record
	return nil
}

func (t *memTx) find(match func(models.School) bool) *models.School {
	ids := make([]uint, 0, len(t.schools))
	for id := range t.schools {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if s := t.schools[id]; match(s) {
			return &s
		}
	}
	return nil
}

func (t *memTx) SchoolBySlug(slug string) (*models.School, error) {
	if slug == "" {
		return nil, nil
	}
	return t.find(func(s models.School) bool { return s.Slug == slug }), nil
}

func (t *memTx) SchoolBySubscriptionID(id string) (*models.School, error) {
	if id == "" {
		return nil, nil
	}
	return t.find(func(s models.School) bool { return s.StripeSubscriptionID == id }), nil
}

func (t *memTx) SaveSchool(school *models.School) error {
	if t.store.failSaves > 0 {
		t.store.failSaves--
		return t.store.saveErr
	}
	t.schools[school.ID] = *school
	return nil
}
