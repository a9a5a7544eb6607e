package service

import (
	"context"
	"sync"
	"time"

	"graphrag-gateway/internal/entity"
	"graphrag-gateway/internal/repository/specification"
	"graphrag-gateway/pkg/events"
	"graphrag-gateway/pkg/relay"
	"graphrag-gateway/pkg/retrieval"

	"github.com/google/uuid"
)

type fakeUserRepository struct {
	users   []*entity.User
	touched map[uuid.UUID]time.Time
	pingErr error
}

func newFakeUserRepository(users ...*entity.User) *fakeUserRepository {
	return &fakeUserRepository{users: users, touched: map[uuid.UUID]time.Time{}}
}

func (r *fakeUserRepository) Create(_ context.Context, user *entity.User) error {
	r.users = append(r.users, user)
	return nil
}

// FindOne understands the specifications the services actually pass.
func (r *fakeUserRepository) FindOne(_ context.Context, specs ...specification.Specification) (*entity.User, error) {
	for _, u := range r.users {
		if matches(u, specs) {
			return u, nil
		}
	}
	return nil, nil
}

func matches(u *entity.User, specs []specification.Specification) bool {
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByID:
			if u.Id != s.ID {
				return false
			}
		case specification.ByUsername:
			if u.Username != s.Username {
				return false
			}
		case specification.ActiveUsers:
			if !u.IsActive {
				return false
			}
		}
	}
	return true
}

func (r *fakeUserRepository) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	r.touched[id] = at
	return nil
}

func (r *fakeUserRepository) Ping(context.Context) error { return r.pingErr }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type fakeRetriever struct {
	calls     int
	lastLimit int
	fragments []string
	citations []retrieval.Citation
}

func (r *fakeRetriever) FetchContext(_ context.Context, _ string, limit int) ([]string, []retrieval.Citation) {
	r.calls++
	r.lastLimit = limit
	return r.fragments, r.citations
}

type countingObserver struct {
	opened   int
	outcomes []relay.Outcome
}

func (o *countingObserver) StreamOpened() { o.opened++ }

func (o *countingObserver) ObserveStream(out relay.Outcome) {
	o.outcomes = append(o.outcomes, out)
}
