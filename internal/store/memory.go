package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository used by tests and the
// no-database provider wiring.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User

	// Err forces every operation to fail
	Err error

	// CreateCalls and SaveCalls count writes
	CreateCalls int
	SaveCalls   int
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]*User)}
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return r.Err
}

func (r *MemoryRepository) FindByField(ctx context.Context, field, value string, includeTrashed bool) (*User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		got, err := u.GetField(field)
		if err != nil {
			return nil, err
		}
		if got != value {
			continue
		}
		if u.Trashed() && !includeTrashed {
			continue
		}
		return cloneUser(u), nil
	}
	return nil, nil
}

func (r *MemoryRepository) FindByGUID(ctx context.Context, guid string) (*User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.ObjectGUID == guid {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(ctx context.Context, user *User) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; exists {
		return fmt.Errorf("duplicate user id: %s", user.ID)
	}
	for _, u := range r.users {
		if u.Email == user.Email {
			return fmt.Errorf("duplicate email: %s", user.Email)
		}
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = cloneUser(user)
	r.CreateCalls++
	return nil
}

func (r *MemoryRepository) Save(ctx context.Context, user *User) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; !exists {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = cloneUser(user)
	r.SaveCalls++
	return nil
}

func (r *MemoryRepository) SoftDelete(ctx context.Context, id string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.users[id]
	if !exists || u.Trashed() {
		return fmt.Errorf("user not found: %s", id)
	}
	now := time.Now()
	u.DeletedAt = &now
	return nil
}

func (r *MemoryRepository) Restore(ctx context.Context, id string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.users[id]
	if !exists {
		return fmt.Errorf("user not found: %s", id)
	}
	u.DeletedAt = nil
	u.UpdatedAt = time.Now()
	return nil
}

// Count returns the number of rows, trashed included
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Get returns a user by id for test assertions
func (r *MemoryRepository) Get(id string) *User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[id]; ok {
		return cloneUser(u)
	}
	return nil
}

func cloneUser(u *User) *User {
	c := *u
	if u.Attributes != nil {
		c.Attributes = make(map[string]string, len(u.Attributes))
		for k, v := range u.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}
