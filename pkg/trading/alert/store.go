package alert

import (
	"errors"
	"fmt"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/storage"
)

// Collection is the storage prefix for alert documents.
const Collection = "alerts"

// Store persists alerts as one YAML document each.
type Store struct {
	docs *storage.DocumentStore
}

// NewStore creates a store over s.
func NewStore(s storage.Storage) *Store {
	return &Store{docs: storage.NewDocumentStore(s, storage.YAML, Collection)}
}

// Load returns every stored alert.
func (s *Store) Load() ([]Alert, error) {
	ids, err := s.docs.IDs()
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	alerts := make([]Alert, 0, len(ids))
	for _, id := range ids {
		var a Alert
		if err := s.docs.Get(id, &a); err != nil {
			return nil, fmt.Errorf("load alert %s: %w", id, err)
		}
		alerts = append(alerts, a)
	}
	sortAlerts(alerts)
	return alerts, nil
}

// Get returns the stored alert with id.
func (s *Store) Get(id string) (Alert, error) {
	var a Alert
	if err := s.docs.Get(id, &a); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Alert{}, ErrNotFound
		}
		return Alert{}, err
	}
	return a, nil
}

// Save writes the alerts.
func (s *Store) Save(alerts ...Alert) error {
	for _, a := range alerts {
		if err := s.docs.Put(a.ID, a); err != nil {
			return fmt.Errorf("save alert %s: %w", a.ID, err)
		}
	}
	return nil
}

// Delete removes the alert with id.
func (s *Store) Delete(id string) error {
	return s.docs.Delete(id)
}

// LoadBook loads every stored alert into a new book.
func (s *Store) LoadBook() (*Book, error) {
	alerts, err := s.Load()
	if err != nil {
		return nil, err
	}
	return NewBook(alerts...), nil
}
