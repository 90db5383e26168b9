package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/promptly/internal/payment/domain"
	reconcilerdomain "github.com/smallbiznis/promptly/internal/reconciler/domain"
	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	ProviderName     = "stripe"
	defaultTolerance = 300 * time.Second
)

// sessionCreator is satisfied by the stripe client's checkout session
// resource.
type sessionCreator interface {
	New(params *stripego.CheckoutSessionParams) (*stripego.CheckoutSession, error)
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret, ok := readString(cfg.Config, "webhook_secret")
	if !ok || strings.TrimSpace(secret) == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	tolerance := defaultTolerance
	if value, ok := cfg.Config["tolerance"].(time.Duration); ok && value > 0 {
		tolerance = value
	}

	adapter := &Adapter{
		webhookSecret: strings.TrimSpace(secret),
		tolerance:     tolerance,
	}
	if key, ok := readString(cfg.Config, "secret_key"); ok && strings.TrimSpace(key) != "" {
		api := &client.API{}
		api.Init(strings.TrimSpace(key), nil)
		adapter.sessions = api.CheckoutSessions
	}
	return adapter, nil
}

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	sessions      sessionCreator
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	_, err := webhook.ConstructEventWithOptions(payload, sigHeader, a.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                a.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) ||
			errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrTooOld) {
			return paymentdomain.ErrInvalidSignature
		}
		return paymentdomain.ErrInvalidPayload
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*reconcilerdomain.Event, error) {
	var event stripego.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || event.Data == nil {
		return nil, paymentdomain.ErrInvalidEvent
	}

	out := &reconcilerdomain.Event{
		Provider: ProviderName,
		ID:       event.ID,
		Type:     string(event.Type),
		Created:  timestamp(event.Created, 0),
	}

	switch out.Type {
	case reconcilerdomain.EventCheckoutCompleted:
		var session stripego.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		out.Checkout = &reconcilerdomain.CheckoutCompleted{
			Provider:          ProviderName,
			EventID:           event.ID,
			SessionID:         session.ID,
			ClientReferenceID: strings.TrimSpace(session.ClientReferenceID),
			CustomerID:        customerID(session.Customer),
			SubscriptionID:    subscriptionID(session.Subscription),
			Metadata:          session.Metadata,
		}
	case reconcilerdomain.EventSubscriptionCreated,
		reconcilerdomain.EventSubscriptionUpdated,
		reconcilerdomain.EventSubscriptionDeleted:
		var sub stripego.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		if strings.TrimSpace(sub.ID) == "" {
			return nil, paymentdomain.ErrInvalidEvent
		}
		out.Subscription = subscriptionChanged(event, &sub)
	case reconcilerdomain.EventInvoicePaymentSucceeded,
		reconcilerdomain.EventInvoicePaymentFailed:
		var invoice stripego.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		succeeded := out.Type == reconcilerdomain.EventInvoicePaymentSucceeded
		amount := invoice.AmountPaid
		if !succeeded || amount == 0 {
			amount = invoice.AmountDue
		}
		out.Invoice = &reconcilerdomain.InvoicePayment{
			Provider:       ProviderName,
			EventID:        event.ID,
			InvoiceID:      invoice.ID,
			CustomerID:     customerID(invoice.Customer),
			SubscriptionID: subscriptionID(invoice.Subscription),
			Amount:         amount,
			Currency:       strings.ToUpper(strings.TrimSpace(string(invoice.Currency))),
			Succeeded:      succeeded,
			OccurredAt:     timestamp(invoice.Created, event.Created),
		}
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
	return out, nil
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	if a.sessions == nil {
		return nil, paymentdomain.ErrCheckoutUnavailable
	}
	if strings.TrimSpace(req.PriceID) == "" {
		return nil, paymentdomain.ErrPriceNotConfigured
	}

	accountRef := req.AccountID.String()
	metadata := map[string]string{
		reconcilerdomain.MetadataAccountID: accountRef,
		reconcilerdomain.MetadataPlanID:    req.Plan,
	}
	params := &stripego.CheckoutSessionParams{
		Mode:              stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripego.String(accountRef),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				Price:    stripego.String(req.PriceID),
				Quantity: stripego.Int64(1),
			},
		},
		SuccessURL: stripego.String(req.SuccessURL),
		CancelURL:  stripego.String(req.CancelURL),
		SubscriptionData: &stripego.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	params.Metadata = metadata
	if req.CustomerID != "" {
		params.Customer = stripego.String(req.CustomerID)
	} else if req.Email != "" {
		params.CustomerEmail = stripego.String(req.Email)
	}

	session, err := a.sessions.New(params)
	if err != nil {
		return nil, err
	}
	return &paymentdomain.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func subscriptionChanged(event stripego.Event, sub *stripego.Subscription) *reconcilerdomain.SubscriptionChanged {
	var priceIDs []string
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil && item.Price.ID != "" {
				priceIDs = append(priceIDs, item.Price.ID)
			}
		}
	}

	endsAt := optionalTime(sub.EndedAt)
	if endsAt == nil {
		endsAt = optionalTime(sub.CancelAt)
	}
	if endsAt == nil {
		endsAt = optionalTime(sub.CurrentPeriodEnd)
	}

	return &reconcilerdomain.SubscriptionChanged{
		Provider:           ProviderName,
		EventID:            event.ID,
		SubscriptionID:     sub.ID,
		CustomerID:         customerID(sub.Customer),
		Status:             string(sub.Status),
		PriceIDs:           priceIDs,
		Metadata:           sub.Metadata,
		CurrentPeriodStart: optionalTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   optionalTime(sub.CurrentPeriodEnd),
		TrialStart:         optionalTime(sub.TrialStart),
		TrialEnd:           optionalTime(sub.TrialEnd),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         optionalTime(sub.CanceledAt),
		EndsAt:             endsAt,
		OccurredAt:         timestamp(event.Created, sub.Created),
	}
}

func customerID(customer *stripego.Customer) string {
	if customer == nil {
		return ""
	}
	return strings.TrimSpace(customer.ID)
}

func subscriptionID(sub *stripego.Subscription) string {
	if sub == nil {
		return ""
	}
	return strings.TrimSpace(sub.ID)
}

func optionalTime(unix int64) *time.Time {
	if unix <= 0 {
		return nil
	}
	t := time.Unix(unix, 0).UTC()
	return &t
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	switch cast := value.(type) {
	case string:
		return cast, true
	default:
		return "", false
	}
}
