package billing

import (
	"bytes"
	"encoding/json"
	"time"
)

// expandableID decodes a Stripe reference that is either an id string or an
// expanded object carrying an id.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

type priceObject struct {
	ID expandableID `json:"id"`
}

// checkoutSession is a minimal representation of a Stripe checkout.session event.
type checkoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          expandableID      `json:"customer"`
	Subscription      expandableID      `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	LineItems         *struct {
		Data []struct {
			Price *priceObject `json:"price"`
		} `json:"data"`
	} `json:"line_items"`
}

type period struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// invoice is a minimal representation of a Stripe invoice. Older API versions
// carry the subscription at the top level, newer ones under parent.
type invoice struct {
	ID           string       `json:"id"`
	Customer     expandableID `json:"customer"`
	Subscription expandableID `json:"subscription"`
	PeriodEnd    int64        `json:"period_end"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Price   *priceObject `json:"price"`
			Pricing *struct {
				PriceDetails *struct {
					Price expandableID `json:"price"`
				} `json:"price_details"`
			} `json:"pricing"`
			Period *period `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func (i invoice) subscriptionRef() string {
	if i.Subscription != "" {
		return string(i.Subscription)
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return string(i.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

// priceAndPeriod reads the first line item. The line period is the billed
// subscription period; the invoice-level period_end is not.
func (i invoice) priceAndPeriod() (string, *time.Time) {
	if len(i.Lines.Data) == 0 {
		return "", nil
	}
	line := i.Lines.Data[0]
	price := ""
	switch {
	case line.Price != nil:
		price = string(line.Price.ID)
	case line.Pricing != nil && line.Pricing.PriceDetails != nil:
		price = string(line.Pricing.PriceDetails.Price)
	}
	var end *time.Time
	if line.Period != nil {
		end = unixTime(line.Period.End)
	}
	return price, end
}

// subscriptionObject is a minimal representation of a Stripe subscription.
// current_period_end moved from the subscription to its items in newer API
// versions; both are read.
type subscriptionObject struct {
	ID               string       `json:"id"`
	Customer         expandableID `json:"customer"`
	Status           string       `json:"status"`
	CurrentPeriodEnd int64        `json:"current_period_end"`
	Items            struct {
		Data []struct {
			Price            *priceObject `json:"price"`
			CurrentPeriodEnd int64        `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (s subscriptionObject) details() SubscriptionDetails {
	d := SubscriptionDetails{
		CustomerRef: string(s.Customer),
		PeriodEnd:   unixTime(s.CurrentPeriodEnd),
	}
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.Price != nil {
			d.PriceRef = string(item.Price.ID)
		}
		if d.PeriodEnd == nil {
			d.PeriodEnd = unixTime(item.CurrentPeriodEnd)
		}
	}
	return d
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
