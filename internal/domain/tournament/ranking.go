package tournament

import (
	"github.com/alem-hub/tournament-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Standing - участник и его очки.
type Standing struct {
	ParticipantID shared.ParticipantID `json:"participant_id"`
	Score         int                  `json:"score"`
}

// Ranking - неизменяемый упорядоченный снапшот лидерборда.
//
// Порядок задаёт Storage (по убыванию очков, тай-брейк на стороне хранилища).
// Ranking не пересортировывает записи: позиция участника - это его
// порядковый номер в снапшоте, начиная с 1. После публикации снапшот
// не изменяется, а только заменяется целиком.
type Ranking struct {
	entries []Standing
	byID    map[shared.ParticipantID]int
}

var emptyRanking = &Ranking{byID: map[shared.ParticipantID]int{}}

// EmptyRanking возвращает пустой снапшот.
func EmptyRanking() *Ranking {
	return emptyRanking
}

// NewRanking строит снапшот из упорядоченных записей.
// Повторные вхождения одного участника игнорируются.
func NewRanking(entries []Standing) *Ranking {
	if len(entries) == 0 {
		return emptyRanking
	}

	r := &Ranking{
		entries: make([]Standing, 0, len(entries)),
		byID:    make(map[shared.ParticipantID]int, len(entries)),
	}
	for _, e := range entries {
		if _, dup := r.byID[e.ParticipantID]; dup {
			continue
		}
		r.byID[e.ParticipantID] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r
}

// Len возвращает количество участников в снапшоте.
func (r *Ranking) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Position возвращает позицию участника (с 1) или Unranked.
func (r *Ranking) Position(id shared.ParticipantID) shared.Position {
	if r == nil {
		return shared.Unranked
	}
	idx, ok := r.byID[id]
	if !ok {
		return shared.Unranked
	}
	return shared.Position(idx + 1)
}

// At возвращает запись на позиции pos.
func (r *Ranking) At(pos int) (Standing, bool) {
	if r == nil || pos < 1 || pos > len(r.entries) {
		return Standing{}, false
	}
	return r.entries[pos-1], true
}

// ScoreAt возвращает очки на позиции pos, 0 вне диапазона.
// Отрицательные очки отображаются как 0.
func (r *Ranking) ScoreAt(pos int) int {
	s, ok := r.At(pos)
	if !ok || s.Score < 0 {
		return 0
	}
	return s.Score
}

// Score возвращает очки участника из снапшота.
func (r *Ranking) Score(id shared.ParticipantID) (int, bool) {
	pos := r.Position(id)
	if pos.IsUnranked() {
		return 0, false
	}
	return r.entries[pos-1].Score, true
}

// Top возвращает копию первых n записей.
func (r *Ranking) Top(n int) []Standing {
	if r == nil || n <= 0 {
		return []Standing{}
	}
	if n > len(r.entries) {
		n = len(r.entries)
	}
	out := make([]Standing, n)
	copy(out, r.entries[:n])
	return out
}

// Entries возвращает копию всех записей в порядке снапшота.
func (r *Ranking) Entries() []Standing {
	return r.Top(r.Len())
}

// CountAtLeast возвращает число участников с очками не ниже threshold.
func (r *Ranking) CountAtLeast(threshold int) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, e := range r.entries {
		if e.Score >= threshold {
			n++
		}
	}
	return n
}

// Without возвращает новый снапшот без участника id.
func (r *Ranking) Without(id shared.ParticipantID) *Ranking {
	if r.Position(id).IsUnranked() {
		return r
	}
	out := make([]Standing, 0, len(r.entries)-1)
	for _, e := range r.entries {
		if e.ParticipantID != id {
			out = append(out, e)
		}
	}
	return NewRanking(out)
}
