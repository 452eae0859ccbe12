package oracle

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned by a ScriptedOracle with no answer left.
var ErrScriptExhausted = errors.New("scripted oracle has no more answers")

// AnswerFunc picks an answer for a query.
type AnswerFunc func(q Query) (string, error)

// ScriptedOracle is a test double that answers from a function and records
// every query it receives. Answers are checked with Resolve unless Unchecked
// is set, mirroring the contract the real providers enforce.
type ScriptedOracle struct {
	answer    AnswerFunc
	queries   []Query
	sessions  int
	closed    int
	mu        sync.Mutex
	Unchecked bool
}

// NewScriptedOracle returns an oracle answering with fn.
func NewScriptedOracle(fn AnswerFunc) *ScriptedOracle {
	return &ScriptedOracle{answer: fn}
}

// Answers returns an oracle that replies with answers in order.
func Answers(answers ...string) *ScriptedOracle {
	var mu sync.Mutex
	next := 0
	return NewScriptedOracle(func(Query) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(answers) {
			return "", ErrScriptExhausted
		}
		a := answers[next]
		next++
		return a, nil
	})
}

// ByLabel returns an oracle that answers by query label.
func ByLabel(answers map[string]string) *ScriptedOracle {
	return NewScriptedOracle(func(q Query) (string, error) {
		a, ok := answers[q.Label]
		if !ok {
			return "", ErrScriptExhausted
		}
		return a, nil
	})
}

// NewSession implements Oracle.
func (s *ScriptedOracle) NewSession(_ context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions++
	return &scriptedSession{oracle: s}, nil
}

// Queries returns a copy of every query received.
func (s *ScriptedOracle) Queries() []Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Query, len(s.queries))
	copy(out, s.queries)
	return out
}

// CallCount returns how many queries were answered or attempted.
func (s *ScriptedOracle) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

// Sessions returns how many sessions were opened and how many were closed.
func (s *ScriptedOracle) Sessions() (opened, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions, s.closed
}

type scriptedSession struct {
	oracle *ScriptedOracle
	closed bool
}

func (ss *scriptedSession) Choose(ctx context.Context, q Query) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateQuery(q); err != nil {
		return "", err
	}

	s := ss.oracle
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()

	answer, err := s.answer(q)
	if err != nil {
		return "", err
	}
	if s.Unchecked {
		return answer, nil
	}
	return Resolve(answer, q)
}

func (ss *scriptedSession) Close() error {
	if ss.closed {
		return nil
	}
	ss.closed = true
	s := ss.oracle
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}
