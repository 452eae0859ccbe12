package oracle

import (
	"context"
	"errors"
	"fmt"
)

// ErrOptionNotOffered is returned when an oracle answer is not one of the
// offered option names. It is a contract violation and is never retried.
var ErrOptionNotOffered = errors.New("oracle contract violation: answer is not an offered option")

// ErrNoOptions is returned when a query offers nothing to choose from.
var ErrNoOptions = errors.New("query has no options")

// Option is one entry of the menu presented to the oracle.
type Option struct {
	Name string
	// Leaf marks an option with no further subcategories.
	Leaf bool
	// Terminal marks a synthetic option that ends the walk.
	Terminal bool
}

// Query is a single menu-selection request.
type Query struct {
	// Text is the input being classified.
	Text string
	// Label describes what the options represent, e.g. "product verticals".
	Label   string
	Options []Option
}

// Names returns the option names in order.
func (q Query) Names() []string {
	names := make([]string, len(q.Options))
	for i, o := range q.Options {
		names[i] = o.Name
	}
	return names
}

// Oracle opens sessions. Implementations must be safe for concurrent use.
type Oracle interface {
	// NewSession starts a conversation scoped to one navigation.
	NewSession(ctx context.Context) (Session, error)
}

// Session carries the conversational context of one navigation. A session is
// used by a single goroutine and must be closed when the navigation ends.
type Session interface {
	// Choose returns exactly one of q's option names.
	Choose(ctx context.Context, q Query) (string, error)
	Close() error
}

// Resolve checks answer against the offered names with a single equality test.
func Resolve(answer string, q Query) (string, error) {
	for _, o := range q.Options {
		if o.Name == answer {
			return o.Name, nil
		}
	}
	return "", fmt.Errorf("%w: got %q, offered %d %s", ErrOptionNotOffered, answer, len(q.Options), q.Label)
}

func validateQuery(q Query) error {
	if len(q.Options) == 0 {
		return fmt.Errorf("%w: %s", ErrNoOptions, q.Label)
	}
	return nil
}
