package tournament

import (
	"context"
	"time"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
)

// RunRecord - итог завершённого запуска для истории.
type RunRecord struct {
	TournamentID shared.TournamentID `json:"tournament_id"`
	RunToken     string              `json:"run_token"`
	EndedAt      time.Time           `json:"ended_at"`
	Standings    []Standing          `json:"standings"`
}

// Winner возвращает первое место, если оно есть.
func (r RunRecord) Winner() (Standing, bool) {
	if len(r.Standings) == 0 {
		return Standing{}, false
	}
	return r.Standings[0], true
}

// NewRunRecord строит запись из данных события завершения.
func NewRunRecord(data RunData, endedAt time.Time) RunRecord {
	ranking := data.Ranking
	if ranking == nil {
		ranking = EmptyRanking()
	}
	return RunRecord{
		TournamentID: data.TournamentID,
		RunToken:     data.RunToken,
		EndedAt:      endedAt,
		Standings:    ranking.Entries(),
	}
}

// RunHistory хранит завершённые запуски.
type RunHistory interface {
	// RecordRun сохраняет запись. Повторная запись того же токена игнорируется.
	RecordRun(ctx context.Context, record RunRecord) error

	// RecentRuns возвращает последние запуски турнира, новые первыми.
	RecentRuns(ctx context.Context, tournamentID shared.TournamentID, limit int) ([]RunRecord, error)
}
