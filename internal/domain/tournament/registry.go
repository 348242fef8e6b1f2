package tournament

import (
	"sort"
	"sync"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
)

// Registry - потокобезопасный набор загруженных турниров.
type Registry struct {
	mu    sync.RWMutex
	items map[shared.TournamentID]*Tournament
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{items: make(map[shared.TournamentID]*Tournament)}
}

// Register добавляет турнир. Повторный идентификатор - ошибка.
func (r *Registry) Register(t *Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[t.ID()]; exists {
		return shared.ErrTournamentExists
	}
	r.items[t.ID()] = t
	return nil
}

// Get возвращает турнир по идентификатору.
func (r *Registry) Get(id shared.TournamentID) (*Tournament, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.items[id]
	if !ok {
		return nil, shared.ErrTournamentNotFound
	}
	return t, nil
}

// All возвращает турниры, отсортированные по идентификатору.
func (r *Registry) All() []*Tournament {
	r.mu.RLock()
	out := make([]*Tournament, 0, len(r.items))
	for _, t := range r.items {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// WithStatus возвращает турниры в указанном статусе.
func (r *Registry) WithStatus(status Status) []*Tournament {
	var out []*Tournament
	for _, t := range r.All() {
		if t.Status() == status {
			out = append(out, t)
		}
	}
	return out
}

// Len возвращает количество турниров.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
