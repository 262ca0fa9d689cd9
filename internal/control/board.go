package control

import (
	"sync"

	"github.com/samber/lo"
	"go.uber.org/atomic"

	"github.com/san-kum/wholebody/internal/command"
)

type boardState struct {
	byID    map[string]command.Command
	order   []string
	version uint64
}

// CommandBoard collects commands from planners. A command replaces an
// earlier one with the same ID. Writers copy the current set and publish
// the copy, so the control goroutine reads a consistent set without locking.
type CommandBoard struct {
	mu  sync.Mutex
	cur atomic.Pointer[boardState]
}

func NewCommandBoard() *CommandBoard {
	b := &CommandBoard{}
	b.cur.Store(&boardState{byID: map[string]command.Command{}})
	return b
}

func (b *CommandBoard) update(fn func(s *boardState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := b.cur.Load()
	next := &boardState{
		byID:    make(map[string]command.Command, len(old.byID)),
		order:   append([]string(nil), old.order...),
		version: old.version + 1,
	}
	for k, v := range old.byID {
		next.byID[k] = v
	}
	fn(next)
	b.cur.Store(next)
}

// Submit adds commands, superseding any with the same ID. Nil commands are ignored.
func (b *CommandBoard) Submit(cmds ...command.Command) {
	b.update(func(s *boardState) { s.add(cmds) })
}

func (s *boardState) add(cmds []command.Command) {
	for _, c := range cmds {
		if c == nil {
			continue
		}
		if _, ok := s.byID[c.ID()]; !ok {
			s.order = append(s.order, c.ID())
		}
		s.byID[c.ID()] = c
	}
}

func (b *CommandBoard) Remove(ids ...string) {
	b.update(func(s *boardState) {
		for _, id := range ids {
			delete(s.byID, id)
		}
		s.order = lo.Filter(s.order, func(id string, _ int) bool {
			_, ok := s.byID[id]
			return ok
		})
	})
}

// Replace swaps the whole set for cmds.
func (b *CommandBoard) Replace(cmds ...command.Command) {
	b.update(func(s *boardState) {
		s.byID = map[string]command.Command{}
		s.order = nil
		s.add(cmds)
	})
}

// Commands returns the current set in order of first submission.
func (b *CommandBoard) Commands() []command.Command {
	s := b.cur.Load()
	return lo.Map(s.order, func(id string, _ int) command.Command { return s.byID[id] })
}

// Version increases with every change.
func (b *CommandBoard) Version() uint64 { return b.cur.Load().version }

func (b *CommandBoard) Len() int { return len(b.cur.Load().order) }
