package tournament

import (
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultRefreshInterval - период пересчёта лидерборда по умолчанию.
	DefaultRefreshInterval = 60 * time.Second

	// MinRefreshInterval - меньшие значения поднимаются до этого.
	MinRefreshInterval = 10 * time.Second
)

// ParticipationPolicy - правила вступления в турнир.
type ParticipationPolicy struct {
	// Automatic - игрок вступает при первом начислении очков.
	Automatic bool

	// Cost - стоимость вступления (списание делает внешний исполнитель).
	Cost float64

	// Permission - требуемое право, пустое = без ограничений.
	Permission string

	// Actions - действия, выполняемые при вступлении.
	Actions []string
}

// Definition - неизменяемая конфигурация турнира.
// Создаётся через Builder один раз до первого запуска.
type Definition struct {
	id             shared.TournamentID
	window         TimeWindow
	refresh        time.Duration
	challenge      bool
	goal           int
	rewards        map[shared.Position][]string
	startActions   []string
	endActions     []string
	participation  ParticipationPolicy
	objective      string
	disabledWorlds []string
	disabledModes  []string
}

// ID возвращает идентификатор турнира.
func (d *Definition) ID() shared.TournamentID { return d.id }

// Window возвращает расписание (границы не вычислены для повторяющихся окон).
func (d *Definition) Window() TimeWindow { return d.window }

// RefreshInterval возвращает период пересчёта.
func (d *Definition) RefreshInterval() time.Duration { return d.refresh }

// IsChallenge сообщает, является ли турнир челленджем.
func (d *Definition) IsChallenge() bool { return d.challenge }

// ChallengeGoal возвращает цель челленджа, -1 для обычного турнира.
func (d *Definition) ChallengeGoal() int {
	if !d.challenge {
		return -1
	}
	return d.goal
}

// Objective возвращает идентификатор источника очков.
func (d *Definition) Objective() string { return d.objective }

// Participation возвращает копию правил вступления.
func (d *Definition) Participation() ParticipationPolicy {
	p := d.participation
	p.Actions = slices.Clone(d.participation.Actions)
	return p
}

// StartActions возвращает копию действий при старте.
func (d *Definition) StartActions() []string { return slices.Clone(d.startActions) }

// EndActions возвращает копию действий при завершении.
func (d *Definition) EndActions() []string { return slices.Clone(d.endActions) }

// DisabledWorlds возвращает копию списка исключённых миров.
func (d *Definition) DisabledWorlds() []string { return slices.Clone(d.disabledWorlds) }

// DisabledModes возвращает копию списка исключённых режимов игры.
func (d *Definition) DisabledModes() []string { return slices.Clone(d.disabledModes) }

// Reward возвращает действия награды за позицию.
func (d *Definition) Reward(pos shared.Position) ([]string, bool) {
	actions, ok := d.rewards[pos]
	if !ok {
		return nil, false
	}
	return slices.Clone(actions), true
}

// RewardPositions возвращает настроенные позиции по возрастанию.
func (d *Definition) RewardPositions() []shared.Position {
	out := make([]shared.Position, 0, len(d.rewards))
	for pos := range d.rewards {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rewards возвращает глубокую копию таблицы наград.
func (d *Definition) Rewards() map[shared.Position][]string {
	out := make(map[shared.Position][]string, len(d.rewards))
	for pos, actions := range d.rewards {
		out[pos] = slices.Clone(actions)
	}
	return out
}

// AcceptsScore проверяет, засчитываются ли очки из мира world в режиме mode.
// Пустые значения не фильтруются.
func (d *Definition) AcceptsScore(world, mode string) bool {
	if world != "" && containsFold(d.disabledWorlds, world) {
		return false
	}
	if mode != "" && containsFold(d.disabledModes, mode) {
		return false
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// Builder собирает Definition. Ошибки настройки накапливаются
// и возвращаются из Build.
type Builder struct {
	def  Definition
	errs []error
}

// NewBuilder начинает сборку турнира с идентификатором id.
func NewBuilder(id string) *Builder {
	b := &Builder{
		def: Definition{
			refresh: DefaultRefreshInterval,
			goal:    -1,
			rewards: make(map[shared.Position][]string),
		},
	}
	tid, err := shared.NewTournamentID(id)
	if err != nil {
		b.errs = append(b.errs, err)
	}
	b.def.id = tid
	return b
}

// Window задаёт расписание.
func (b *Builder) Window(w TimeWindow) *Builder {
	b.def.window = w
	return b
}

// RefreshInterval задаёт период пересчёта. Значения меньше
// MinRefreshInterval поднимаются до минимума.
func (b *Builder) RefreshInterval(d time.Duration) *Builder {
	if d < MinRefreshInterval {
		d = MinRefreshInterval
	}
	b.def.refresh = d
	return b
}

// Challenge делает турнир челленджем с целью goal.
func (b *Builder) Challenge(goal int) *Builder {
	if goal <= 0 {
		b.errs = append(b.errs, shared.ErrInvalidGoal)
		return b
	}
	b.def.challenge = true
	b.def.goal = goal
	return b
}

// Reward задаёт действия награды за позицию.
func (b *Builder) Reward(pos shared.Position, actions ...string) *Builder {
	if !pos.IsValid() {
		b.errs = append(b.errs, shared.ErrInvalidPosition)
		return b
	}
	b.def.rewards[pos] = slices.Clone(actions)
	return b
}

// StartActions задаёт действия при старте.
func (b *Builder) StartActions(actions ...string) *Builder {
	b.def.startActions = slices.Clone(actions)
	return b
}

// EndActions задаёт действия при завершении.
func (b *Builder) EndActions(actions ...string) *Builder {
	b.def.endActions = slices.Clone(actions)
	return b
}

// Participation задаёт правила вступления.
func (b *Builder) Participation(p ParticipationPolicy) *Builder {
	p.Actions = slices.Clone(p.Actions)
	b.def.participation = p
	return b
}

// Objective задаёт источник очков.
func (b *Builder) Objective(objective string) *Builder {
	b.def.objective = strings.TrimSpace(objective)
	return b
}

// DisabledWorlds задаёт миры, из которых очки не принимаются.
func (b *Builder) DisabledWorlds(worlds ...string) *Builder {
	b.def.disabledWorlds = slices.Clone(worlds)
	return b
}

// DisabledModes задаёт режимы игры, в которых очки не принимаются.
func (b *Builder) DisabledModes(modes ...string) *Builder {
	b.def.disabledModes = slices.Clone(modes)
	return b
}

// Build проверяет конфигурацию и возвращает Definition.
func (b *Builder) Build() (*Definition, error) {
	if b.def.window.timeline == "" {
		b.errs = append(b.errs, shared.ErrInvalidWindow)
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	def := b.def
	def.rewards = make(map[shared.Position][]string, len(b.def.rewards))
	for pos, actions := range b.def.rewards {
		def.rewards[pos] = slices.Clone(actions)
	}
	return &def, nil
}
