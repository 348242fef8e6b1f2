package memory

import (
	"context"
	"sync"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// Directory tracks known players and who is online.
type Directory struct {
	mu      sync.RWMutex
	players map[shared.ParticipantID]tournament.Player
}

var _ tournament.PresenceTracker = (*Directory)(nil)

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{players: make(map[shared.ParticipantID]tournament.Player)}
}

// Lookup returns the player. Unknown players come back offline without error.
func (d *Directory) Lookup(_ context.Context, id shared.ParticipantID) (tournament.Player, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if p, ok := d.players[id]; ok {
		return p, nil
	}
	return tournament.Player{ID: id}, nil
}

// SetOnline marks the player online and reports whether they were offline before.
func (d *Directory) SetOnline(_ context.Context, id shared.ParticipantID, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.players[id]
	wasOnline := p.Online
	p.ID = id
	if name != "" {
		p.Name = name
	}
	p.Online = true
	d.players[id] = p
	return !wasOnline, nil
}

// SetOffline marks the player offline and reports whether they were online.
func (d *Directory) SetOffline(_ context.Context, id shared.ParticipantID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.players[id]
	if !ok || !p.Online {
		return false, nil
	}
	p.Online = false
	d.players[id] = p
	return true, nil
}

// OnlineCount returns the number of online players.
func (d *Directory) OnlineCount(context.Context) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var n int64
	for _, p := range d.players {
		if p.Online {
			n++
		}
	}
	return n, nil
}
