package tournament

import (
	"context"
	"time"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// Storage определяет контракт хранилища очков и отложенных действий.
// Реализации находятся в infrastructure слое (PostgreSQL, Redis, memory).
type Storage interface {
	// PersistScoreUpdate сохраняет очки участника (update-or-insert).
	PersistScoreUpdate(ctx context.Context, tournamentID shared.TournamentID, participantID shared.ParticipantID, score int) error

	// TopRanking возвращает участников по убыванию очков.
	// Тай-брейк определяет хранилище.
	TopRanking(ctx context.Context, tournamentID shared.TournamentID) ([]Standing, error)

	// TopRankingAboveScore возвращает участников с очками не ниже threshold.
	TopRankingAboveScore(ctx context.Context, tournamentID shared.TournamentID, threshold int) ([]shared.ParticipantID, error)

	// RegisterParticipant идемпотентно добавляет строку участника.
	RegisterParticipant(ctx context.Context, tournamentID shared.TournamentID, participantID shared.ParticipantID, score int) error

	// ForgetParticipant удаляет строку участника.
	ForgetParticipant(ctx context.Context, tournamentID shared.TournamentID, participantID shared.ParticipantID) error

	// ForgetAllParticipants удаляет всех участников турнира.
	ForgetAllParticipants(ctx context.Context, tournamentID shared.TournamentID) error

	// LoadParticipants возвращает сохранённых участников для восстановления после рестарта.
	LoadParticipants(ctx context.Context, tournamentID shared.TournamentID) ([]Standing, error)

	// EnqueueDeferredActions атомарно ставит список действий в очередь участника.
	// Либо сохраняются все действия, либо ни одно.
	EnqueueDeferredActions(ctx context.Context, participantID shared.ParticipantID, actions []string) error
}

// DeferredActionStore выдаёт накопленные отложенные действия.
type DeferredActionStore interface {
	// TakeDeferredActions извлекает и удаляет очередь участника.
	TakeDeferredActions(ctx context.Context, participantID shared.ParticipantID) ([]string, error)

	// PendingParticipants возвращает участников с непустой очередью.
	PendingParticipants(ctx context.Context) ([]shared.ParticipantID, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIONS & PLAYERS
// ══════════════════════════════════════════════════════════════════════════════

// Player - дескриптор игрока.
// Online == false означает офлайн-дескриптор (только ID и имя для отображения).
type Player struct {
	ID     shared.ParticipantID `json:"id"`
	Name   string               `json:"name"`
	Online bool                 `json:"online"`
}

// DisplayName возвращает имя или ID, если имя неизвестно.
func (p Player) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID.String()
}

// PlayerDirectory разрешает идентификатор в дескриптор игрока.
type PlayerDirectory interface {
	// Lookup возвращает дескриптор. Неизвестный игрок - офлайн-дескриптор без ошибки.
	Lookup(ctx context.Context, id shared.ParticipantID) (Player, error)
}

// PresenceTracker - каталог игроков, который также принимает отметки присутствия.
type PresenceTracker interface {
	PlayerDirectory

	// SetOnline отмечает игрока онлайн. true - если до этого он был офлайн.
	SetOnline(ctx context.Context, id shared.ParticipantID, name string) (bool, error)

	// SetOffline отмечает игрока офлайн. true - если до этого он был онлайн.
	SetOffline(ctx context.Context, id shared.ParticipantID) (bool, error)

	// OnlineCount возвращает количество игроков онлайн.
	OnlineCount(ctx context.Context) (int64, error)
}

// ActionExecutor выполняет строки действий.
// target == nil - действие без конкретного игрока (общий контекст).
type ActionExecutor interface {
	Execute(ctx context.Context, target *Player, actions []string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Task - единица работы для планировщика.
type Task func(ctx context.Context)

// Cancelable - отменяемая периодическая задача.
type Cancelable interface {
	Cancel()
}

// Scheduler предоставляет основной однопоточный контекст и пул фоновых
// контекстов. Основной контекст выполняет публикацию событий и
// выдачу наград онлайн-игрокам.
type Scheduler interface {
	// RunAsync выполняет задачу в фоновом контексте.
	RunAsync(task Task)

	// RunOnPrimary выполняет задачу в основном контексте.
	RunOnPrimary(task Task)

	// RunPeriodicAsync запускает задачу с задержкой initialDelay и периодом period.
	RunPeriodicAsync(task Task, initialDelay, period time.Duration) (Cancelable, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// OBSERVER
// ══════════════════════════════════════════════════════════════════════════════

// Observer получает уведомления для метрик.
type Observer interface {
	UpdatePassed(id shared.TournamentID, took time.Duration, err error)
	TickSkipped(id shared.TournamentID)
	RewardsDispatched(id shared.TournamentID, report DispatchReport)
	ChallengeCompleted(id shared.TournamentID, rank shared.Position)
}

type noopObserver struct{}

func (noopObserver) UpdatePassed(shared.TournamentID, time.Duration, error)  {}
func (noopObserver) TickSkipped(shared.TournamentID)                         {}
func (noopObserver) RewardsDispatched(shared.TournamentID, DispatchReport)   {}
func (noopObserver) ChallengeCompleted(shared.TournamentID, shared.Position) {}
