package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/nutrixpert/nutrixpert/internal/pkg/apperror"
)

const testWebhookSecret = "whsec_test_123"

func sign(payload string, secret string, ts time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: ts,
		Scheme:    "v1",
	}).Header
}

func ingest(t *testing.T, payload string) (CanonicalEvent, error) {
	t.Helper()
	i := NewIngestor(testWebhookSecret, 5*time.Minute)
	return i.Ingest([]byte(payload), sign(payload, testWebhookSecret, time.Now()))
}

func TestIngestCheckoutCompleted(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"metadata user_id", `{"id":"evt_1","type":"checkout.session.completed","created":1767225600,"data":{"object":{"id":"cs_1","mode":"subscription","customer":"cus_1","subscription":"sub_1","metadata":{"user_id":"42"}}}}`},
		{"metadata userId", `{"id":"evt_1","type":"checkout.session.completed","created":1767225600,"data":{"object":{"id":"cs_1","mode":"subscription","customer":"cus_1","subscription":"sub_1","metadata":{"userId":"42"}}}}`},
		{"client reference id", `{"id":"evt_1","type":"checkout.session.completed","created":1767225600,"data":{"object":{"id":"cs_1","mode":"subscription","customer":"cus_1","subscription":"sub_1","client_reference_id":"42"}}}`},
		{"expanded objects", `{"id":"evt_1","type":"checkout.session.completed","created":1767225600,"data":{"object":{"id":"cs_1","mode":"subscription","customer":{"id":"cus_1"},"subscription":{"id":"sub_1","object":"subscription"},"metadata":{"user_id":"42"}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ingest(t, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, "evt_1", ev.ID)
			assert.Equal(t, EventCheckoutCompleted, ev.Type)
			assert.Equal(t, "checkout.session.completed", ev.ProviderType)
			assert.Equal(t, uint(42), ev.AccountID)
			assert.Equal(t, "sub_1", ev.SubscriptionRef)
			assert.Equal(t, "cus_1", ev.CustomerRef)
			assert.Equal(t, time.Unix(1767225600, 0).UTC(), ev.OccurredAt)
			assert.Nil(t, ev.PeriodEnd)
		})
	}
}

func TestIngestCheckoutWithLineItems(t *testing.T) {
	ev, err := ingest(t, `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"mode":"subscription","subscription":"sub_1","metadata":{"user_id":"7"},"line_items":{"data":[{"price":{"id":"price_pro"}}]}}}}`)
	require.NoError(t, err)
	assert.Equal(t, "price_pro", ev.PriceRef)
}

func TestIngestInvoices(t *testing.T) {
	periodEnd := time.Unix(1769904000, 0).UTC()

	tests := []struct {
		name     string
		payload  string
		wantType EventType
		price    string
	}{
		{
			"legacy invoice.payment_succeeded",
			`{"id":"evt_2","type":"invoice.payment_succeeded","data":{"object":{"id":"in_1","customer":"cus_1","subscription":"sub_1","lines":{"data":[{"price":{"id":"price_pro"},"period":{"start":1767225600,"end":1769904000}}]}}}}`,
			EventInvoicePaid, "price_pro",
		},
		{
			"invoice.paid with parent subscription details",
			`{"id":"evt_2","type":"invoice.paid","data":{"object":{"id":"in_1","customer":"cus_1","parent":{"type":"subscription_details","subscription_details":{"subscription":"sub_1"}},"lines":{"data":[{"pricing":{"price_details":{"price":"price_pro"}},"period":{"start":1767225600,"end":1769904000}}]}}}}`,
			EventInvoicePaid, "price_pro",
		},
		{
			"invoice.payment_failed",
			`{"id":"evt_2","type":"invoice.payment_failed","data":{"object":{"id":"in_1","customer":"cus_1","subscription":"sub_1","lines":{"data":[{"price":{"id":"price_pro"},"period":{"start":1767225600,"end":1769904000}}]}}}}`,
			EventInvoiceFailed, "price_pro",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ingest(t, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, ev.Type)
			assert.Equal(t, "sub_1", ev.SubscriptionRef)
			assert.Equal(t, "cus_1", ev.CustomerRef)
			assert.Equal(t, tt.price, ev.PriceRef)
			require.NotNil(t, ev.PeriodEnd)
			assert.True(t, periodEnd.Equal(*ev.PeriodEnd))
		})
	}
}

func TestIngestSubscriptionDeleted(t *testing.T) {
	ev, err := ingest(t, `{"id":"evt_3","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1","status":"canceled"}}}`)
	require.NoError(t, err)
	assert.Equal(t, EventSubscriptionCanceled, ev.Type)
	assert.Equal(t, "sub_1", ev.SubscriptionRef)
}

func TestIngestUnhandled(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"other event type", `{"id":"evt_4","type":"customer.created","data":{"object":{"id":"cus_1"}}}`},
		{"one-off checkout", `{"id":"evt_5","type":"checkout.session.completed","data":{"object":{"mode":"payment","metadata":{"user_id":"1"}}}}`},
		{"checkout without account", `{"id":"evt_6","type":"checkout.session.completed","data":{"object":{"mode":"subscription","subscription":"sub_1"}}}`},
		{"paid invoice without subscription", `{"id":"evt_7","type":"invoice.paid","data":{"object":{"id":"in_9","customer":"cus_9"}}}`},
		{"failed invoice without subscription", `{"id":"evt_8","type":"invoice.payment_failed","data":{"object":{"id":"in_1","customer":"cus_1"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ingest(t, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, EventUnhandled, ev.Type)
			assert.NotEmpty(t, ev.ID)
		})
	}
}

func TestIngestMissingEventIDUsesPayloadHash(t *testing.T) {
	payload := `{"type":"customer.subscription.deleted","data":{"object":{"id":"sub_1"}}}`

	first, err := ingest(t, payload)
	require.NoError(t, err)
	second, err := ingest(t, payload)
	require.NoError(t, err)

	assert.Regexp(t, `^hash:[0-9a-f]{64}$`, first.ID)
	assert.Equal(t, first.ID, second.ID)
}

func TestIngestRejectsBadSignatures(t *testing.T) {
	payload := `{"id":"evt_1","type":"invoice.paid","data":{"object":{"subscription":"sub_1"}}}`
	i := NewIngestor(testWebhookSecret, 5*time.Minute)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"garbage header", "t=1,v1=deadbeef"},
		{"wrong secret", sign(payload, "whsec_other", time.Now())},
		{"too old", sign(payload, testWebhookSecret, time.Now().Add(-time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := i.Ingest([]byte(payload), tt.header)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperror.ErrInvalidSignature)
		})
	}

	t.Run("no secret configured", func(t *testing.T) {
		_, err := NewIngestor("", 0).Ingest([]byte(payload), sign(payload, testWebhookSecret, time.Now()))
		assert.ErrorIs(t, err, apperror.ErrInvalidSignature)
	})

	t.Run("tampered body", func(t *testing.T) {
		header := sign(payload, testWebhookSecret, time.Now())
		_, err := i.Ingest([]byte(payload+" "), header)
		assert.ErrorIs(t, err, apperror.ErrInvalidSignature)
	})
}

func TestIngestRejectsMalformedEvents(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"id":"evt_1",`},
		{"no data", `{"id":"evt_1","type":"invoice.paid"}`},
		{"checkout with non numeric account", `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"mode":"subscription","subscription":"sub_1","metadata":{"user_id":"abc"}}}}`},
		{"checkout without subscription", `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"mode":"subscription","metadata":{"user_id":"1"}}}}`},
		{"invoice with wrong field type", `{"id":"evt_1","type":"invoice.paid","data":{"object":{"subscription":42}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ingest(t, tt.payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperror.ErrMalformedEvent)
		})
	}
}

func TestIngestMalformedEventKeepsEnvelope(t *testing.T) {
	ev, err := ingest(t, `{"id":"evt_9","type":"invoice.paid","data":{"object":{"subscription":42}}}`)
	require.ErrorIs(t, err, apperror.ErrMalformedEvent)
	assert.Equal(t, "evt_9", ev.ID)
	assert.Equal(t, "invoice.paid", ev.ProviderType)

	ev, err = ingest(t, `{"id":"evt_10","type":"invoice.paid"}`)
	require.ErrorIs(t, err, apperror.ErrMalformedEvent)
	assert.Equal(t, "evt_10", ev.ID)
}
