package tournament

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOURNAMENT AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies - внешние коллабораторы турнира.
type Dependencies struct {
	Storage   Storage
	Executor  ActionExecutor
	Publisher shared.EventPublisher
	Scheduler Scheduler
	Directory PlayerDirectory
}

func (d Dependencies) validate() error {
	var missing []string
	if d.Storage == nil {
		missing = append(missing, "storage")
	}
	if d.Executor == nil {
		missing = append(missing, "executor")
	}
	if d.Publisher == nil {
		missing = append(missing, "publisher")
	}
	if d.Scheduler == nil {
		missing = append(missing, "scheduler")
	}
	if d.Directory == nil {
		missing = append(missing, "directory")
	}
	if len(missing) > 0 {
		return shared.NewDomainError("tournament", "New", shared.ErrInvalidInput,
			fmt.Sprintf("missing dependencies: %v", missing))
	}
	return nil
}

// Options - процессные настройки, передаваемые при создании.
type Options struct {
	// Debug включает подробное логирование переходов.
	Debug bool

	// Now - источник времени, по умолчанию time.Now.
	Now func() time.Time

	// Logger - логгер турнира.
	Logger *zap.Logger

	// Observer получает метрики, по умолчанию no-op.
	Observer Observer
}

// Tournament - агрегат турнира.
//
// Конфигурация (Definition) неизменяема. Состояние запуска (статус, окно,
// токен, периодическая задача) защищено mu. ScoreBoard имеет собственную
// блокировку, а снапшот хранится в атомарном указателе и только заменяется.
type Tournament struct {
	def      *Definition
	deps     Dependencies
	rewards  *RewardDispatcher
	now      func() time.Time
	log      *zap.Logger
	debug    bool
	observer Observer

	mu     sync.RWMutex
	status Status
	window TimeWindow
	token  string
	ticker Cancelable

	board    *ScoreBoard
	ranking  atomic.Pointer[Ranking]
	passMu   sync.Mutex
	updating atomic.Bool

	completedMu sync.Mutex
	completed   map[shared.ParticipantID]struct{}

	metaMu sync.RWMutex
	meta   map[string]any
}

// New создаёт турнир и вычисляет его начальный статус.
func New(def *Definition, deps Dependencies, opts Options) (*Tournament, error) {
	if def == nil {
		return nil, shared.NewDomainError("tournament", "New", shared.ErrInvalidInput, "definition is required")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	log := opts.Logger.With(zap.String("tournament", def.ID().String()))
	t := &Tournament{
		def:       def,
		deps:      deps,
		rewards:   NewRewardDispatcher(deps.Directory, deps.Executor, deps.Storage, deps.Scheduler, log),
		now:       opts.Now,
		log:       log,
		debug:     opts.Debug,
		observer:  opts.Observer,
		status:    StatusWaiting,
		window:    def.Window(),
		board:     NewScoreBoard(),
		completed: make(map[shared.ParticipantID]struct{}),
		meta:      make(map[string]any),
	}
	t.ranking.Store(EmptyRanking())

	if _, err := t.UpdateStatus(); err != nil {
		return nil, err
	}
	return t, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────────────────────────────────

// ID возвращает идентификатор турнира.
func (t *Tournament) ID() shared.TournamentID { return t.def.ID() }

// Definition возвращает конфигурацию турнира.
func (t *Tournament) Definition() *Definition { return t.def }

// Status возвращает текущий статус.
func (t *Tournament) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Window возвращает текущее вычисленное окно.
func (t *Tournament) Window() TimeWindow {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.window
}

// RunToken возвращает токен текущего запуска, пустой до первого Start.
func (t *Tournament) RunToken() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

// IsUpdating сообщает, выполняется ли сейчас проход пересчёта.
func (t *Tournament) IsUpdating() bool { return t.updating.Load() }

// Ranking возвращает текущий снапшот.
func (t *Tournament) Ranking() *Ranking { return t.ranking.Load() }

// Participants возвращает копию живых очков.
func (t *Tournament) Participants() []Standing { return t.board.Entries() }

// ParticipantCount возвращает число участников в ScoreBoard.
func (t *Tournament) ParticipantCount() int { return t.board.Len() }

// TimeRemaining возвращает время до начала (WAITING) или конца (ACTIVE).
// false для завершённого турнира.
func (t *Tournament) TimeRemaining() (time.Duration, bool) {
	t.mu.RLock()
	status, window := t.status, t.window
	t.mu.RUnlock()

	now := t.now()
	switch status {
	case StatusWaiting:
		return window.Start().Sub(now), true
	case StatusActive:
		return window.End().Sub(now), true
	default:
		return 0, false
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────────────────────────────────

// UpdateStatus пересчитывает окно повторяющегося расписания
// и выводит из него статус. Идемпотентна.
func (t *Tournament) UpdateStatus() (Status, error) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	window, err := t.window.Resolve(now)
	if err != nil {
		return t.status, shared.WrapError("tournament", "UpdateStatus", shared.ErrInvalidState,
			"failed to resolve window", err)
	}
	t.window = window
	t.status = window.Phase(now)
	return t.status, nil
}

// Phase выводит статус на момент now, не меняя состояние турнира.
func (t *Tournament) Phase(now time.Time) (Status, TimeWindow, error) {
	window, err := t.Window().Resolve(now)
	if err != nil {
		return "", window, err
	}
	return window.Phase(now), window, nil
}

// Start запускает новый прогон турнира.
//
// При clearParticipants участники очищаются в фоне, а стартовые действия
// выполняются в основном контексте. Каждый вызов выпускает новый токен
// и заменяет периодическую задачу пересчёта.
func (t *Tournament) Start(ctx context.Context, clearParticipants bool) error {
	t.debugf("executing tournament start", zap.Bool("clear", clearParticipants))

	if clearParticipants {
		t.resetCompletions()
		t.deps.Scheduler.RunAsync(func(ctx context.Context) {
			// Под passMu: тик нового прогона не вернёт в хранилище строки прошлого.
			t.passMu.Lock()
			defer t.passMu.Unlock()
			if err := t.ClearParticipants(ctx); err != nil {
				t.log.Error("failed to clear participants on start", zap.Error(err))
			}
		})

		if actions := t.def.StartActions(); len(actions) > 0 {
			t.deps.Scheduler.RunOnPrimary(func(ctx context.Context) {
				t.execute(ctx, nil, actions)
			})
		}
	}

	token := uuid.NewString()

	t.mu.Lock()
	t.status = StatusActive
	t.token = token
	if t.ticker != nil {
		t.ticker.Cancel()
		t.ticker = nil
	}
	ticker, err := t.deps.Scheduler.RunPeriodicAsync(t.tick, 0, t.def.RefreshInterval())
	if err != nil {
		t.mu.Unlock()
		return shared.WrapError("tournament", "Start", shared.ErrExternalService,
			"failed to schedule recomputation", err)
	}
	t.ticker = ticker
	window := t.window
	t.mu.Unlock()

	t.log.Info("tournament started",
		zap.String("run_token", token),
		zap.Time("ends_at", window.End()))

	event := NewStartedEvent(t, token, window)
	t.deps.Scheduler.RunOnPrimary(func(context.Context) {
		t.publish(event)
	})
	return nil
}

// Stop завершает активный прогон.
//
// Для неактивного турнира возвращает ErrTournamentNotActive без побочных
// эффектов. Иначе выполняет финальный пересчёт, публикует итог, раздаёт
// награды по позициям, выполняет финальные действия и очищает участников.
// Челлендж пропускает только раздачу по позициям: его награды уже выданы.
func (t *Tournament) Stop(ctx context.Context) error {
	t.debugf("executing tournament stop")

	t.mu.Lock()
	if t.status != StatusActive {
		status := t.status
		t.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", shared.ErrTournamentNotActive, t.ID(), status)
	}
	t.status = StatusEnded
	ticker := t.ticker
	t.ticker = nil
	token := t.token
	t.mu.Unlock()

	if ticker != nil {
		ticker.Cancel()
	}

	if err := t.Update(ctx); err != nil {
		return fmt.Errorf("final recomputation: %w", err)
	}

	final := t.Ranking()
	ended := NewEndedEvent(RunData{TournamentID: t.ID(), RunToken: token, Ranking: final})
	t.deps.Scheduler.RunOnPrimary(func(context.Context) {
		t.publish(ended)
	})

	t.log.Info("tournament stopped",
		zap.String("run_token", token),
		zap.Int("participants", final.Len()))

	if !t.def.IsChallenge() {
		report := t.rewards.Dispatch(ctx, t.def, final)
		t.observer.RewardsDispatched(t.ID(), report)
	}

	if actions := t.def.EndActions(); len(actions) > 0 {
		t.deps.Scheduler.RunOnPrimary(func(ctx context.Context) {
			t.execute(ctx, nil, actions)
		})
	}

	return t.ClearParticipants(ctx)
}

// Update выполняет проход пересчёта: сохраняет очки всех участников и
// заменяет снапшот свежим рейтингом из хранилища. Проходы сериализованы.
// Во время прохода читатели видят прежний снапшот; при ошибке он
// сбрасывается, а флаг IsUpdating снимается всегда.
func (t *Tournament) Update(ctx context.Context) error {
	t.passMu.Lock()
	defer t.passMu.Unlock()
	return t.pass(ctx)
}

// tick - периодический вызов. Если предыдущий проход не закончен, тик пропускается.
func (t *Tournament) tick(ctx context.Context) {
	if t.IsUpdating() || !t.passMu.TryLock() {
		t.observer.TickSkipped(t.ID())
		t.debugf("skipping tick, previous pass in flight")
		return
	}
	defer t.passMu.Unlock()

	if err := t.pass(ctx); err != nil {
		t.log.Warn("recomputation pass failed", zap.Error(err))
	}
}

func (t *Tournament) pass(ctx context.Context) (err error) {
	t.updating.Store(true)
	started := time.Now()
	defer func() {
		t.updating.Store(false)
		t.observer.UpdatePassed(t.ID(), time.Since(started), err)
	}()

	for _, s := range t.board.Entries() {
		if err = t.deps.Storage.PersistScoreUpdate(ctx, t.ID(), s.ParticipantID, s.Score); err != nil {
			t.ranking.Store(EmptyRanking())
			return fmt.Errorf("persist score of %s: %w", s.ParticipantID, err)
		}
	}

	top, err := t.deps.Storage.TopRanking(ctx, t.ID())
	if err != nil {
		t.ranking.Store(EmptyRanking())
		return fmt.Errorf("load top ranking: %w", err)
	}

	t.ranking.Store(NewRanking(top))
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Scoring
// ──────────────────────────────────────────────────────────────────────────────

// AddParticipant записывает очки участника и при persist регистрирует его в хранилище.
func (t *Tournament) AddParticipant(ctx context.Context, id shared.ParticipantID, score int, persist bool) error {
	t.debugf("adding participant", zap.String("participant", id.String()))

	t.board.Put(id, score)
	if !persist {
		return nil
	}
	if err := t.deps.Storage.RegisterParticipant(ctx, t.ID(), id, score); err != nil {
		return fmt.Errorf("register participant %s: %w", id, err)
	}
	return nil
}

// Restore загружает сохранённых участников без повторной записи в хранилище.
func (t *Tournament) Restore(ctx context.Context) (int, error) {
	rows, err := t.deps.Storage.LoadParticipants(ctx, t.ID())
	if err != nil {
		return 0, fmt.Errorf("load participants: %w", err)
	}
	for _, row := range rows {
		_ = t.AddParticipant(ctx, row.ParticipantID, row.Score, false)
	}
	return len(rows), nil
}

// AddScore прибавляет amount к очкам участника (или заменяет при replace)
// и возвращает новое значение. Отсутствующий участник получает amount.
//
// В челлендже первое достижение цели за прогон запускает выдачу награды
// за место финиша и событие ChallengeCompletedEvent.
func (t *Tournament) AddScore(ctx context.Context, id shared.ParticipantID, amount int, replace bool) int {
	score := t.board.Apply(id, func(old int, present bool) int {
		if present && !replace {
			return old + amount
		}
		return amount
	})

	if t.def.IsChallenge() && score >= t.def.ChallengeGoal() && t.markCompleted(id) {
		t.completeChallenge(ctx, id, score)
	}
	return score
}

// SetScore заменяет очки участника.
func (t *Tournament) SetScore(ctx context.Context, id shared.ParticipantID, score int) int {
	return t.AddScore(ctx, id, score, true)
}

// Score возвращает живые очки участника.
func (t *Tournament) Score(id shared.ParticipantID) (int, bool) {
	return t.board.Get(id)
}

// IsParticipant сообщает, участвует ли игрок в текущем прогоне.
func (t *Tournament) IsParticipant(id shared.ParticipantID) bool {
	return t.board.Contains(id)
}

// HasCompletedChallenge сообщает, достиг ли участник цели в этом прогоне.
func (t *Tournament) HasCompletedChallenge(id shared.ParticipantID) bool {
	t.completedMu.Lock()
	defer t.completedMu.Unlock()
	_, ok := t.completed[id]
	return ok
}

// Position возвращает место участника в снапшоте, 0 если его там нет.
func (t *Tournament) Position(id shared.ParticipantID) shared.Position {
	return t.Ranking().Position(id)
}

// ScoreFromPosition возвращает очки на месте pos, 0 вне диапазона.
func (t *Tournament) ScoreFromPosition(pos int) int {
	return t.Ranking().ScoreAt(pos)
}

// ParticipantFromPosition возвращает участника на месте pos.
func (t *Tournament) ParticipantFromPosition(pos int) (shared.ParticipantID, bool) {
	s, ok := t.Ranking().At(pos)
	return s.ParticipantID, ok
}

// PlayerFromPosition возвращает дескриптор игрока на месте pos.
// Если каталог недоступен, возвращается офлайн-дескриптор с ID.
func (t *Tournament) PlayerFromPosition(ctx context.Context, pos int) (Player, bool) {
	id, ok := t.ParticipantFromPosition(pos)
	if !ok {
		return Player{}, false
	}
	player, err := t.deps.Directory.Lookup(ctx, id)
	if err != nil {
		t.log.Warn("player lookup failed", zap.String("participant", id.String()), zap.Error(err))
		return Player{ID: id}, true
	}
	if player.ID.IsEmpty() {
		player.ID = id
	}
	return player, true
}

// RemoveParticipant удаляет участника из ScoreBoard, снапшота и хранилища.
// Отметка о выполнении челленджа сохраняется.
func (t *Tournament) RemoveParticipant(ctx context.Context, id shared.ParticipantID) error {
	t.board.Remove(id)
	t.dropFromRanking(id)
	if err := t.deps.Storage.ForgetParticipant(ctx, t.ID(), id); err != nil {
		return fmt.Errorf("forget participant %s: %w", id, err)
	}
	return nil
}

// ClearParticipant удаляет участника полностью, включая отметку челленджа.
func (t *Tournament) ClearParticipant(ctx context.Context, id shared.ParticipantID) error {
	t.completedMu.Lock()
	delete(t.completed, id)
	t.completedMu.Unlock()
	return t.RemoveParticipant(ctx, id)
}

// ClearParticipants удаляет всех участников из памяти и хранилища.
func (t *Tournament) ClearParticipants(ctx context.Context) error {
	t.debugf("clearing participants")

	t.board.Clear()
	t.ranking.Store(EmptyRanking())
	t.resetCompletions()
	if err := t.deps.Storage.ForgetAllParticipants(ctx, t.ID()); err != nil {
		return fmt.Errorf("forget all participants: %w", err)
	}
	return nil
}

// dropFromRanking заменяет снапшот копией без участника.
func (t *Tournament) dropFromRanking(id shared.ParticipantID) {
	for {
		current := t.ranking.Load()
		next := current.Without(id)
		if next == current || t.ranking.CompareAndSwap(current, next) {
			return
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Challenge
// ──────────────────────────────────────────────────────────────────────────────

func (t *Tournament) markCompleted(id shared.ParticipantID) bool {
	t.completedMu.Lock()
	defer t.completedMu.Unlock()
	if _, done := t.completed[id]; done {
		return false
	}
	t.completed[id] = struct{}{}
	return true
}

func (t *Tournament) unmarkCompleted(id shared.ParticipantID) {
	t.completedMu.Lock()
	delete(t.completed, id)
	t.completedMu.Unlock()
}

func (t *Tournament) resetCompletions() {
	t.completedMu.Lock()
	t.completed = make(map[shared.ParticipantID]struct{})
	t.completedMu.Unlock()
}

// completeChallenge сохраняет очки синхронно, затем в фоне вычисляет место
// финиша и возвращается в основной контекст для награды и события.
func (t *Tournament) completeChallenge(ctx context.Context, id shared.ParticipantID, score int) {
	if err := t.deps.Storage.PersistScoreUpdate(ctx, t.ID(), id, score); err != nil {
		t.unmarkCompleted(id)
		t.log.Error("failed to persist challenge completion",
			zap.String("participant", id.String()), zap.Error(err))
		return
	}

	token := t.RunToken()
	goal := t.def.ChallengeGoal()

	t.deps.Scheduler.RunAsync(func(ctx context.Context) {
		finishers, err := t.deps.Storage.TopRankingAboveScore(ctx, t.ID(), goal)
		if err != nil {
			t.log.Error("failed to count challenge finishers",
				zap.String("participant", id.String()), zap.Error(err))
			return
		}
		rank := shared.Position(len(finishers))
		player := t.rewards.resolve(ctx, id)

		t.observer.ChallengeCompleted(t.ID(), rank)
		t.log.Info("challenge completed",
			zap.String("participant", id.String()),
			zap.Int("rank", rank.Int()))

		t.deps.Scheduler.RunOnPrimary(func(context.Context) {
			if actions, ok := t.def.Reward(rank); ok {
				t.rewards.Deliver(player, actions)
			}
			t.publish(NewChallengeCompletedEvent(t, token, player, rank, score))
		})
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Metadata
// ──────────────────────────────────────────────────────────────────────────────

// Meta возвращает значение метаданных.
func (t *Tournament) Meta(key string) (any, bool) {
	t.metaMu.RLock()
	defer t.metaMu.RUnlock()
	v, ok := t.meta[key]
	return v, ok
}

// SetMeta записывает значение метаданных. Переживает прогоны.
func (t *Tournament) SetMeta(key string, value any) {
	t.metaMu.Lock()
	t.meta[key] = value
	t.metaMu.Unlock()
}

// HasMeta проверяет наличие ключа.
func (t *Tournament) HasMeta(key string) bool {
	_, ok := t.Meta(key)
	return ok
}

// DeleteMeta удаляет ключ.
func (t *Tournament) DeleteMeta(key string) {
	t.metaMu.Lock()
	delete(t.meta, key)
	t.metaMu.Unlock()
}

// MetaSnapshot возвращает поверхностную копию метаданных.
func (t *Tournament) MetaSnapshot() map[string]any {
	t.metaMu.RLock()
	defer t.metaMu.RUnlock()
	out := make(map[string]any, len(t.meta))
	for k, v := range t.meta {
		out[k] = v
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

func (t *Tournament) execute(ctx context.Context, target *Player, actions []string) {
	if err := t.deps.Executor.Execute(ctx, target, actions); err != nil {
		t.log.Warn("action execution failed", zap.Error(err))
	}
}

func (t *Tournament) publish(event shared.Event) {
	if err := t.deps.Publisher.Publish(event); err != nil && !errors.Is(err, context.Canceled) {
		t.log.Warn("failed to publish event",
			zap.String("event_type", string(event.EventType())),
			zap.Error(err))
	}
}

func (t *Tournament) debugf(msg string, fields ...zap.Field) {
	if t.debug {
		t.log.Info("[debug] "+msg, fields...)
	}
}
