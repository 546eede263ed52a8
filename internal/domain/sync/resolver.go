package sync

import (
	"errors"

	"github.com/google/uuid"
)

// ErrInvalidStrategy indicates an unknown conflict resolution strategy.
var ErrInvalidStrategy = errors.New("sync: invalid conflict resolution strategy")

// Strategy decides which side of a conflict wins.
type Strategy string

const (
	// StrategyLocalWins pushes the local value to the remote store. This is
	// the one strategy trusted to auto-resolve critical fields: the local
	// catalog is normally the source of truth for price and stock.
	StrategyLocalWins Strategy = "local_wins"
	// StrategyRemoteWins pulls the remote value into the local catalog.
	StrategyRemoteWins Strategy = "remote_wins"
	// StrategyNewestWins compares update timestamps; a missing timestamp
	// defaults to epoch so it always loses.
	StrategyNewestWins Strategy = "newest_wins"
	// StrategyManual defers every conflict to a human.
	StrategyManual Strategy = "manual"
)

// IsValid returns true if the strategy is one of the known strategies.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyLocalWins, StrategyRemoteWins, StrategyNewestWins, StrategyManual:
		return true
	}
	return false
}

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	return string(s)
}

// Direction is which way a resolution action moves data.
type Direction string

const (
	// DirectionPush writes the local value to the remote store.
	DirectionPush Direction = "push"
	// DirectionPull writes the remote value into the local catalog.
	DirectionPull Direction = "pull"
)

// Action is a declarative intent emitted by the resolver and consumed by the
// sync orchestrator. The resolver itself never performs I/O, keeping
// resolution policy independently testable.
type Action struct {
	Direction Direction
	Field     string
	Value     string
	ProductID uuid.UUID
	StoreID   uuid.UUID
}

// Resolution is the outcome of resolving a set of conflicts.
type Resolution struct {
	// Resolved contains the conflicts an action was computed for.
	Resolved []Conflict
	// ManualReview contains the conflicts deferred to a human. A critical
	// field conflict may appear here even when an action was also computed.
	ManualReview []Conflict
	// Actions contains the declarative intents to apply.
	Actions []Action
	// TotalConflicts is the number of conflicts that went in.
	TotalConflicts int
}

// NeedsReview returns true if any conflict awaits a human decision.
func (r *Resolution) NeedsReview() bool {
	return len(r.ManualReview) > 0
}

// Resolve applies the strategy to each conflict, in order:
//
//  1. strategy manual: every conflict is queued for review, no actions.
//  2. non-critical fields: the strategy's action is emitted.
//  3. critical fields: the action is emitted, but unless the strategy is
//     local_wins the conflict is additionally queued for manual review.
//     Price and inventory divergence is never silently auto-resolved.
//
// Resolution is deterministic: identical inputs partition identically.
func Resolve(conflicts []Conflict, strategy Strategy) (*Resolution, error) {
	if !strategy.IsValid() {
		return nil, ErrInvalidStrategy
	}

	res := &Resolution{
		Resolved:       make([]Conflict, 0, len(conflicts)),
		ManualReview:   make([]Conflict, 0),
		Actions:        make([]Action, 0, len(conflicts)),
		TotalConflicts: len(conflicts),
	}

	if strategy == StrategyManual {
		res.ManualReview = append(res.ManualReview, conflicts...)
		return res, nil
	}

	for _, c := range conflicts {
		action := actionFor(c, strategy)
		res.Actions = append(res.Actions, action)
		res.Resolved = append(res.Resolved, c)

		if c.IsCritical() && strategy != StrategyLocalWins {
			res.ManualReview = append(res.ManualReview, c)
		}
	}

	return res, nil
}

// actionFor computes the winning side for one conflict under a strategy.
func actionFor(c Conflict, strategy Strategy) Action {
	localWins := true
	switch strategy {
	case StrategyRemoteWins:
		localWins = false
	case StrategyNewestWins:
		// Local wins ties. Zero timestamps compare as epoch, so a side with
		// no timestamp always loses to one that has any.
		localWins = !c.LocalUpdatedAt.Before(c.RemoteUpdatedAt)
	}

	if localWins {
		return Action{
			Direction: DirectionPush,
			Field:     c.Field,
			Value:     c.LocalValue,
			ProductID: c.ProductID,
			StoreID:   c.StoreID,
		}
	}
	return Action{
		Direction: DirectionPull,
		Field:     c.Field,
		Value:     c.RemoteValue,
		ProductID: c.ProductID,
		StoreID:   c.StoreID,
	}
}
