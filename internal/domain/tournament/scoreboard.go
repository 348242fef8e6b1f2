package tournament

import (
	"sync"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCOREBOARD
// ══════════════════════════════════════════════════════════════════════════════

// ScoreBoard - живые очки участников текущего запуска.
// Все записи проходят через один мьютекс, поэтому конкурентные
// обновления линеаризуемы. Порядок ключей не имеет значения.
type ScoreBoard struct {
	mu     sync.Mutex
	scores map[shared.ParticipantID]int
}

// NewScoreBoard создаёт пустую таблицу очков.
func NewScoreBoard() *ScoreBoard {
	return &ScoreBoard{
		scores: make(map[shared.ParticipantID]int),
	}
}

// Put записывает очки участника, перезаписывая прежнее значение.
func (b *ScoreBoard) Put(id shared.ParticipantID, score int) {
	b.mu.Lock()
	b.scores[id] = score
	b.mu.Unlock()
}

// Apply атомарно вычисляет новое значение из старого и сохраняет его.
// present == false, если участника ещё не было.
func (b *ScoreBoard) Apply(id shared.ParticipantID, fn func(old int, present bool) int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	old, present := b.scores[id]
	next := fn(old, present)
	b.scores[id] = next
	return next
}

// Get возвращает очки участника.
func (b *ScoreBoard) Get(id shared.ParticipantID) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	score, ok := b.scores[id]
	return score, ok
}

// Contains проверяет наличие участника.
func (b *ScoreBoard) Contains(id shared.ParticipantID) bool {
	_, ok := b.Get(id)
	return ok
}

// Remove удаляет участника. Возвращает true, если он был.
func (b *ScoreBoard) Remove(id shared.ParticipantID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.scores[id]; !ok {
		return false
	}
	delete(b.scores, id)
	return true
}

// Clear удаляет всех участников и возвращает их количество.
func (b *ScoreBoard) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.scores)
	b.scores = make(map[shared.ParticipantID]int)
	return n
}

// Len возвращает количество участников.
func (b *ScoreBoard) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.scores)
}

// Entries возвращает согласованную копию на момент вызова.
// Порядок записей не определён.
func (b *ScoreBoard) Entries() []Standing {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Standing, 0, len(b.scores))
	for id, score := range b.scores {
		out = append(out, Standing{ParticipantID: id, Score: score})
	}
	return out
}
