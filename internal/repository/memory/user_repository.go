package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rimo-de/attend-academy-timekeeper/internal/domain"
)

// UserRepository is an in-memory user store intended for tests and dev
// environments.
type UserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]domain.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		nextID: 1,
		users:  make(map[int64]domain.User),
	}
}

func (r *UserRepository) Init(_ context.Context) error { return nil }

func (r *UserRepository) Create(_ context.Context, user *domain.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Username == user.Username {
			return 0, fmt.Errorf("user already exists")
		}
	}

	now := time.Now().UTC()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.nextID++
	r.users[user.ID] = *user
	return user.ID, nil
}

func (r *UserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Username == username {
			u := user
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user not found")
}

func (r *UserRepository) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	u := user
	return &u, nil
}
