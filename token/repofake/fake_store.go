package tokenfakerepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-jobboard-client/token"
)

var _ token.Store = (*FakeStore)(nil)

// FakeStore is an in-memory token.Store that records how it was used
type FakeStore struct {
	lock    sync.Mutex
	pair    token.Pair
	saveErr error

	Saves  int
	Loads  int
	Clears int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

// NewFakeStoreWith returns a store that already holds pair
func NewFakeStoreWith(pair token.Pair) *FakeStore {
	return &FakeStore{pair: pair}
}

// FailSaves makes every following Save return err (nil restores normal behaviour)
func (s *FakeStore) FailSaves(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.saveErr = err
}

func (s *FakeStore) Save(_ context.Context, pair token.Pair) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.Saves++
	if !pair.Valid() {
		return token.ErrInvalidPair
	}
	if s.saveErr != nil {
		return s.saveErr
	}
	s.pair = pair
	return nil
}

func (s *FakeStore) Load(_ context.Context) (token.Pair, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.Loads++
	if !s.pair.Valid() {
		return token.Pair{}, false
	}
	return s.pair, true
}

func (s *FakeStore) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.Clears++
	s.pair = token.Pair{}
	return nil
}

// Current returns the stored pair without counting as a Load
func (s *FakeStore) Current() token.Pair {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pair
}

// ClearCount returns Clears under the lock
func (s *FakeStore) ClearCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.Clears
}
