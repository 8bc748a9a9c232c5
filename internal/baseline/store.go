package baseline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/storage"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

var ErrStaleSnapshot = errors.New("snapshot version is not newer than the current one")

// Store holds the current snapshot behind an atomic pointer: detector reads
// are lock-free and always see one complete snapshot.
type Store struct {
	current  atomic.Pointer[Snapshot]
	persist  storage.BaselineStore
	location *time.Location
}

func NewStore(persist storage.BaselineStore, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	s := &Store{persist: persist, location: loc}
	s.current.Store(Empty(loc))
	return s
}

func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Publish swaps in snap if its version is newer than the current one.
func (s *Store) Publish(snap *Snapshot) error {
	for {
		cur := s.current.Load()
		if snap.Version <= cur.Version {
			return fmt.Errorf("%w: %d <= %d", ErrStaleSnapshot, snap.Version, cur.Version)
		}
		if s.current.CompareAndSwap(cur, snap) {
			return nil
		}
	}
}

// Load restores the last persisted snapshot, if any.
func (s *Store) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}

	set, err := s.persist.Latest(ctx)
	if errors.Is(err, models.ErrNotFound) {
		logger.WithComponent("baseline").Info("No persisted baseline snapshot, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load baseline snapshot: %w", err)
	}

	snap := FromSet(set, s.location)
	if err := s.Publish(snap); err != nil && !errors.Is(err, ErrStaleSnapshot) {
		return err
	}
	logger.WithComponent("baseline").Infof("Loaded baseline snapshot %d with %d keys", snap.Version, snap.Len())
	return nil
}

func (s *Store) Location() *time.Location {
	return s.location
}
