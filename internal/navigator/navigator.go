// Package navigator walks the taxonomy tree one oracle turn at a time, from the
// verticals down to a leaf or to a parent the oracle settles on.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/taxomap/internal/model"
	"github.com/Veraticus/taxomap/internal/oracle"
	"github.com/Veraticus/taxomap/internal/taxonomy"
)

// OtherOption is the synthetic option offered at every child turn. Choosing it
// stops the walk at the current category.
const OtherOption = "Other (use parent category)"

// VerticalsLabel describes the options of the first turn.
const VerticalsLabel = "top-level product verticals"

// ErrInvariant is returned when a walk reaches a state the tree and the oracle
// contract should make impossible.
var ErrInvariant = errors.New("navigation invariant violated")

// ChildLabel describes the options offered below cat.
func ChildLabel(cat *model.Category) string {
	return "subcategories of " + cat.FullName
}

// Result is the terminal selection of one navigation.
type Result struct {
	NavigationID  string
	CategoryID    string
	CategoryAlias string
	FullName      string
	Confidence    model.Confidence
	Reasoning     string
	Path          []string
	Turns         int
}

// Config holds configuration options for the navigator.
type Config struct {
	// MaxTurns caps the oracle turns of one navigation. Zero derives the cap
	// from the depth of the index being walked.
	MaxTurns int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{}
}

// Navigator runs drill-down navigations against an oracle.
type Navigator struct {
	oracle   oracle.Oracle
	logger   *slog.Logger
	maxTurns int
}

// New creates a navigator with the default configuration.
func New(o oracle.Oracle, logger *slog.Logger) *Navigator {
	return NewWithConfig(o, logger, DefaultConfig())
}

// NewWithConfig creates a navigator with custom configuration.
func NewWithConfig(o oracle.Oracle, logger *slog.Logger, cfg Config) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{
		oracle:   o,
		logger:   logger,
		maxTurns: cfg.MaxTurns,
	}
}

// Navigate maps input onto one category of idx. Each call opens its own oracle
// session and closes it before returning.
func (n *Navigator) Navigate(ctx context.Context, idx *taxonomy.Index, input string) (*Result, error) {
	w := &walk{
		idx:      idx,
		input:    input,
		maxTurns: n.maxTurns,
		result:   &Result{NavigationID: uuid.NewString()},
	}
	if w.maxTurns <= 0 {
		w.maxTurns = idx.MaxDepth() + 1
	}
	logger := n.logger.With("navigation_id", w.result.NavigationID)

	session, err := n.oracle.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open oracle session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("failed to close oracle session", "error", cerr)
		}
	}()
	w.session = session

	start := time.Now()
	res, err := w.run(ctx)
	if err != nil {
		logger.Error("navigation failed",
			"input", input,
			"turns", w.result.Turns,
			"path", w.result.Path,
			"error", err)
		return nil, err
	}

	logger.Info("navigation complete",
		"input", input,
		"category_id", res.CategoryID,
		"confidence", res.Confidence,
		"turns", res.Turns,
		"duration", time.Since(start))
	return res, nil
}

type walk struct {
	session  oracle.Session
	idx      *taxonomy.Index
	result   *Result
	input    string
	maxTurns int
}

func (w *walk) run(ctx context.Context) (*Result, error) {
	current, err := w.selectVertical(ctx)
	if err != nil {
		return nil, err
	}

	for {
		cat, ok := w.idx.Category(current)
		if !ok {
			return nil, fmt.Errorf("%w: current category %q is not in the index", ErrInvariant, current)
		}

		if cat.IsLeaf() {
			return w.finish(cat, model.ConfidenceHigh, fmt.Sprintf("reached leaf at level %d", cat.Level)), nil
		}

		q := oracle.Query{Text: w.input, Label: ChildLabel(cat)}
		children := w.idx.Children(cat.ID)
		seen := make(map[string]bool, len(children))
		for _, child := range children {
			if seen[child.Name] || child.Name == OtherOption {
				continue
			}
			seen[child.Name] = true
			q.Options = append(q.Options, oracle.Option{
				Name: child.Name,
				Leaf: child.IsLeaf(),
			})
		}
		q.Options = append(q.Options, oracle.Option{Name: OtherOption, Terminal: true})

		answer, err := w.choose(ctx, q)
		if err != nil {
			return nil, err
		}

		if answer == OtherOption {
			return w.finish(cat, model.ConfidenceMedium,
				fmt.Sprintf("no subcategory of %s fit the input; using the parent category", cat.Name)), nil
		}

		next := childNamed(children, answer)
		if next == nil {
			return nil, fmt.Errorf("%w: %q is not a child of %q", ErrInvariant, answer, cat.FullName)
		}
		current = next.ID
	}
}

func (w *walk) selectVertical(ctx context.Context) (string, error) {
	verticals := w.idx.Verticals()
	if len(verticals) == 0 {
		return "", fmt.Errorf("%w: taxonomy %q has no verticals", ErrInvariant, w.idx.Version())
	}

	q := oracle.Query{Text: w.input, Label: VerticalsLabel}
	for _, v := range verticals {
		q.Options = append(q.Options, oracle.Option{Name: v.Name})
	}

	answer, err := w.choose(ctx, q)
	if err != nil {
		return "", err
	}

	for _, v := range verticals {
		if v.Name == answer {
			return v.Root.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q is not a vertical", ErrInvariant, answer)
}

// choose runs one oracle turn, enforcing the turn ceiling first.
func (w *walk) choose(ctx context.Context, q oracle.Query) (string, error) {
	if w.result.Turns >= w.maxTurns {
		return "", fmt.Errorf("%w: exceeded %d turns", ErrInvariant, w.maxTurns)
	}

	answer, err := w.session.Choose(ctx, q)
	if err != nil {
		return "", fmt.Errorf("turn %d: %w", w.result.Turns+1, err)
	}
	w.result.Turns++
	w.result.Path = append(w.result.Path, answer)
	return answer, nil
}

func (w *walk) finish(cat *model.Category, confidence model.Confidence, reasoning string) *Result {
	res := w.result
	res.CategoryID = cat.BareID()
	res.CategoryAlias = model.AliasID(res.CategoryID)
	res.FullName = cat.FullName
	res.Confidence = confidence
	res.Reasoning = reasoning
	return res
}

func childNamed(children []*model.Category, name string) *model.Category {
	for _, c := range children {
		if c.Name == name {
			return c
		}
	}
	return nil
}
