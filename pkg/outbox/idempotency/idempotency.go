// Package idempotency guards event consumers against handling the same
// outbox event twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/settlez-backend/pkg/instance"
	"github.com/angelmondragon/settlez-backend/pkg/redis"
)

// DefaultClaimTTL bounds how long a crashed consumer keeps an event claimed.
const DefaultClaimTTL = 5 * time.Minute

const (
	pendingPrefix = "pending:"
	donePrefix    = "done:"
)

var consumerNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// State is what a consumer learns when it tries to claim an event.
type State int

const (
	// Claimed means the caller owns the event and must Complete or Release it.
	Claimed State = iota
	// InFlight means another worker holds an unfinished claim.
	InFlight
	// Done means the event was already handled.
	Done
)

func (s State) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case InFlight:
		return "in_flight"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Claim reports the state of an event and the instance behind it.
type Claim struct {
	State  State
	Holder string
}

// Guard claims event ids for one consumer. Keys follow
// `sz:idempotency:evt:processed:<consumer>:<event_id>` and hold
// "pending:<instance>" until completed, then "done:<instance>".
type Guard struct {
	store    redis.IdempotencyStore
	consumer string
	claimTTL time.Duration
	doneTTL  time.Duration
	owner    string
}

// NewGuard builds a guard that remembers handled events for doneTTL.
func NewGuard(store redis.IdempotencyStore, consumer string, doneTTL time.Duration) (*Guard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case !consumerNameRe.MatchString(consumer):
		return nil, fmt.Errorf("invalid consumer name %q", consumer)
	case doneTTL <= 0:
		return nil, errors.New("done ttl must be positive")
	}
	claimTTL := DefaultClaimTTL
	if claimTTL > doneTTL {
		claimTTL = doneTTL
	}
	return &Guard{
		store:    store,
		consumer: consumer,
		claimTTL: claimTTL,
		doneTTL:  doneTTL,
		owner:    instance.GetID(),
	}, nil
}

// Consumer returns the name claims are scoped to.
func (g *Guard) Consumer() string { return g.consumer }

// Claim tries to take eventID. Only a Claimed result lets the caller handle it.
func (g *Guard) Claim(ctx context.Context, eventID uuid.UUID) (Claim, error) {
	key, err := g.key(eventID)
	if err != nil {
		return Claim{}, err
	}
	ok, err := g.store.SetNX(ctx, key, pendingPrefix+g.owner, g.claimTTL)
	if err != nil {
		return Claim{}, fmt.Errorf("claim %s for %s: %w", eventID, g.consumer, err)
	}
	if ok {
		return Claim{State: Claimed, Holder: g.owner}, nil
	}

	raw, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// expired between SETNX and GET; let the next delivery retry
		return Claim{State: InFlight}, nil
	case err != nil:
		return Claim{}, fmt.Errorf("read claim %s for %s: %w", eventID, g.consumer, err)
	}
	if holder, ok := strings.CutPrefix(raw, donePrefix); ok {
		return Claim{State: Done, Holder: holder}, nil
	}
	return Claim{State: InFlight, Holder: strings.TrimPrefix(raw, pendingPrefix)}, nil
}

// Complete records eventID as handled for the full retention window.
func (g *Guard) Complete(ctx context.Context, eventID uuid.UUID) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, key, donePrefix+g.owner, g.doneTTL); err != nil {
		return fmt.Errorf("complete %s for %s: %w", eventID, g.consumer, err)
	}
	return nil
}

// Release drops a claim so a failed delivery can be retried.
func (g *Guard) Release(ctx context.Context, eventID uuid.UUID) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(eventID uuid.UUID) (string, error) {
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey("evt:processed:"+g.consumer, eventID.String()), nil
}
