package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/papemosque/community-api/internal/domain"
)

// ErrNoEligibleRecipients is returned when a target resolves to no active
// subscriber. No delivery is attempted.
var ErrNoEligibleRecipients = errors.New("no active subscribers found")

// RecipientStore is the read side of the subscriber store used by a dispatch.
type RecipientStore interface {
	ListActiveSubscribers(ctx context.Context) ([]domain.Subscriber, error)
	GetSubscribersByIDs(ctx context.Context, ids []string) ([]domain.Subscriber, error)
}

// ResolveAudience turns a target into the active subscribers it names,
// deduplicated by id. Unknown, malformed, and non-active ids are dropped.
func ResolveAudience(ctx context.Context, recipients RecipientStore, target domain.Target) ([]domain.Subscriber, error) {
	var (
		found []domain.Subscriber
		err   error
	)

	if target.SendToAll {
		found, err = recipients.ListActiveSubscribers(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing active subscribers: %w", err)
		}
	} else {
		ids := make([]string, 0, len(target.SubscriberIDs))
		for _, id := range target.SubscriberIDs {
			if _, perr := uuid.Parse(id); perr == nil {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			found, err = recipients.GetSubscribersByIDs(ctx, ids)
			if err != nil {
				return nil, fmt.Errorf("looking up subscribers: %w", err)
			}
		}
	}

	seen := make(map[string]struct{}, len(found))
	audience := make([]domain.Subscriber, 0, len(found))
	for _, sub := range found {
		if sub.Status != domain.StatusActive {
			continue
		}
		if _, dup := seen[sub.ID]; dup {
			continue
		}
		seen[sub.ID] = struct{}{}
		audience = append(audience, sub)
	}

	if len(audience) == 0 {
		return nil, ErrNoEligibleRecipients
	}
	return audience, nil
}
