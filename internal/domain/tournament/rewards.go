package tournament

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARD DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// DispatchReport - итог раздачи наград по позициям.
type DispatchReport struct {
	// Delivered - позиции, награды которых выданы онлайн-игрокам.
	Delivered []shared.Position

	// Queued - позиции, награды которых поставлены в очередь.
	Queued []shared.Position

	// Skipped - позиции без участника или без действий.
	Skipped []shared.Position
}

// RewardDispatcher выдаёт награды по финальному снапшоту.
// Онлайн-игрокам действия выполняются в основном контексте,
// офлайн-игрокам ставятся в очередь из фонового контекста.
type RewardDispatcher struct {
	directory PlayerDirectory
	executor  ActionExecutor
	storage   Storage
	scheduler Scheduler
	log       *zap.Logger
}

// NewRewardDispatcher создаёт диспетчер наград.
func NewRewardDispatcher(directory PlayerDirectory, executor ActionExecutor, storage Storage, scheduler Scheduler, log *zap.Logger) *RewardDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &RewardDispatcher{
		directory: directory,
		executor:  executor,
		storage:   storage,
		scheduler: scheduler,
		log:       log,
	}
}

// Dispatch проходит по настроенным позициям по возрастанию.
// Для каждой позиции с участником выполняется ровно одна выдача или постановка в очередь.
func (d *RewardDispatcher) Dispatch(ctx context.Context, def *Definition, ranking *Ranking) DispatchReport {
	var report DispatchReport

	for _, pos := range def.RewardPositions() {
		standing, ok := ranking.At(pos.Int())
		if !ok {
			report.Skipped = append(report.Skipped, pos)
			continue
		}

		actions, _ := def.Reward(pos)
		if len(actions) == 0 {
			report.Skipped = append(report.Skipped, pos)
			continue
		}
		player := d.resolve(ctx, standing.ParticipantID)
		if d.Deliver(player, actions) {
			report.Delivered = append(report.Delivered, pos)
		} else {
			report.Queued = append(report.Queued, pos)
		}
	}

	return report
}

// Deliver выполняет действия для онлайн-игрока или ставит их в очередь.
// Возвращает true, если игрок онлайн.
func (d *RewardDispatcher) Deliver(player Player, actions []string) bool {
	if len(actions) == 0 {
		return player.Online
	}

	if player.Online {
		d.scheduler.RunOnPrimary(func(ctx context.Context) {
			if err := d.executor.Execute(ctx, &player, actions); err != nil {
				d.log.Warn("reward execution failed",
					zap.String("participant", player.ID.String()),
					zap.Error(err))
			}
		})
		return true
	}

	d.scheduler.RunAsync(func(ctx context.Context) {
		if err := d.storage.EnqueueDeferredActions(ctx, player.ID, actions); err != nil {
			d.log.Error("failed to queue reward actions",
				zap.String("participant", player.ID.String()),
				zap.Int("actions", len(actions)),
				zap.Error(err))
		}
	})
	return false
}

// resolve возвращает офлайн-дескриптор, если каталог недоступен:
// награда в таком случае попадёт в очередь, а не потеряется.
func (d *RewardDispatcher) resolve(ctx context.Context, id shared.ParticipantID) Player {
	player, err := d.directory.Lookup(ctx, id)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			d.log.Warn("player lookup failed, treating as offline",
				zap.String("participant", id.String()),
				zap.Error(err))
		}
		return Player{ID: id}
	}
	if player.ID.IsEmpty() {
		player.ID = id
	}
	return player
}
