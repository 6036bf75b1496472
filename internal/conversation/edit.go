package conversation

import (
	"errors"
	"fmt"
)

// ErrIndex is returned by agenda edits addressing an item that does
// not exist.
var ErrIndex = errors.New("agenda index out of range")

// ReplaceAgenda returns s with its agenda replaced by items. It is used
// for manual reorder and edit; messages and Finished are untouched.
func ReplaceAgenda(s State, items []AgendaItem) State {
	s = s.clone()
	s.Agenda = append(make([]AgendaItem, 0, len(items)), items...)
	return s
}

// ToggleAgendaItem flips the completed flag of the item at index i.
func ToggleAgendaItem(s State, i int) (State, error) {
	if i < 0 || i >= len(s.Agenda) {
		return s, fmt.Errorf("toggle item %d of %d: %w", i, len(s.Agenda), ErrIndex)
	}
	s = s.clone()
	s.Agenda[i].Completed = !s.Agenda[i].Completed
	return s, nil
}
