package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"
)

// StripeSubscriptionLookup reads subscriptions through the Stripe API.
type StripeSubscriptionLookup struct {
	getSubscription func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

// NewStripeSubscriptionLookup sets the global Stripe key and returns a lookup.
// It returns nil when no key is configured.
func NewStripeSubscriptionLookup(secretKey string) *StripeSubscriptionLookup {
	if strings.TrimSpace(secretKey) == "" {
		return nil
	}
	stripe.Key = strings.TrimSpace(secretKey)
	return &StripeSubscriptionLookup{getSubscription: subscription.Get}
}

func (l *StripeSubscriptionLookup) Lookup(ctx context.Context, subscriptionRef string) (*SubscriptionDetails, error) {
	if l == nil || l.getSubscription == nil {
		return nil, errors.New("stripe subscription lookup not configured")
	}
	if subscriptionRef == "" {
		return nil, errors.New("subscription reference is empty")
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := l.getSubscription(subscriptionRef, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", subscriptionRef, err)
	}
	if sub.LastResponse == nil || len(sub.LastResponse.RawJSON) == 0 {
		return nil, fmt.Errorf("get subscription %s: empty response", subscriptionRef)
	}

	// The raw body is read with the same decoder as webhook payloads so both
	// API generations of current_period_end are handled in one place.
	var obj subscriptionObject
	if err := json.Unmarshal(sub.LastResponse.RawJSON, &obj); err != nil {
		return nil, fmt.Errorf("decode subscription %s: %w", subscriptionRef, err)
	}
	details := obj.details()
	return &details, nil
}
