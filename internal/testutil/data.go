package testutil

import (
	"context"
	"errors"
	"sync"

	"cultivate/internal/forum"
)

// ErrInjected is returned by FailingDataContext.
var ErrInjected = errors.New("injected failure")

// FailingDataContext wraps a DataContext and fails every write to one entity.
// Calls records the entities mutators were requested for, in order.
type FailingDataContext struct {
	Inner  forum.DataContext
	FailOn string
	mu     sync.Mutex
	Calls  []string
}

func (f *FailingDataContext) Mutator(entity string) (forum.Mutator, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, entity)
	f.mu.Unlock()

	if entity == f.FailOn {
		return failingMutator{}, nil
	}
	return f.Inner.Mutator(entity)
}

type failingMutator struct{}

func (failingMutator) InsertOne(context.Context, forum.Record) (*forum.Result, error) {
	return nil, ErrInjected
}

func (failingMutator) InsertMany(context.Context, []forum.Record) (*forum.ManyResult, error) {
	return nil, ErrInjected
}

// FailingUserCreator rejects every account.
type FailingUserCreator struct{}

func (FailingUserCreator) CreateUser(context.Context, forum.NewUser) (*forum.User, error) {
	return nil, ErrInjected
}
