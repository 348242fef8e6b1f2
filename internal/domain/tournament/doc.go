// Package tournament содержит доменную модель турнира Tournament Hub.
//
// Турнир - это именованное соревнование, ограниченное временным окном,
// в течение которого участники набирают очки. Пакет определяет:
//
//   - Агрегат: Tournament (жизненный цикл WAITING → ACTIVE → ENDED)
//   - Конфигурацию: Definition и Builder (однократная настройка)
//   - Структуры данных: ScoreBoard (живые очки) и Ranking (неизменяемый снапшот)
//   - Временное окно: TimeWindow (фиксированное или повторяющееся расписание)
//   - Раздачу наград: RewardDispatcher
//   - Порты: Storage, ActionExecutor, Scheduler, PlayerDirectory
//
// # Модель конкурентности
//
// ScoreBoard - единственная структура, которую изменяют конкурентные вызовы
// AddScore. Периодический проход пересчёта читает согласованную копию
// ScoreBoard, сохраняет очки через Storage и атомарно подменяет Ranking.
// Два прохода никогда не выполняются одновременно: тик, заставший
// незавершённый проход, пропускается.
//
// # Пример
//
//	def, err := tournament.NewBuilder("weekly-mining").
//	    Window(tournament.MustRecurringWindow(tournament.TimelineWeekly, time.UTC)).
//	    RefreshInterval(30 * time.Second).
//	    Reward(1, "[broadcast] {player} won {tournament}").
//	    Build()
//
//	t, err := tournament.New(def, deps, tournament.Options{Logger: log})
//	_ = t.Start(ctx, true)
//	t.AddScore(ctx, "player-1", 10, false)
//	_ = t.Stop(ctx)
package tournament
