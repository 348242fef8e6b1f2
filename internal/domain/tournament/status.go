package tournament

// Status - фаза жизненного цикла турнира.
type Status string

const (
	// StatusWaiting - окно ещё не открылось.
	StatusWaiting Status = "WAITING"

	// StatusActive - окно открыто, очки принимаются, идёт пересчёт.
	StatusActive Status = "ACTIVE"

	// StatusEnded - окно закрыто или вызван Stop.
	StatusEnded Status = "ENDED"
)

// IsValid проверяет, что статус известен.
func (s Status) IsValid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusEnded:
		return true
	}
	return false
}

// String возвращает строковое представление.
func (s Status) String() string {
	return string(s)
}
