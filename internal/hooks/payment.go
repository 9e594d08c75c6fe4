package hooks

import (
	"context"
	"net/http"
	"slices"
)

// PaymentHook lets a plugin act as a shop payment gateway.
type PaymentHook interface {
	Gateways(ctx context.Context) ([]PaymentGateway, error)
	ProcessPayment(ctx context.Context, gateway string, req PaymentRequest) (*Payment, error)
	VerifyWebhook(ctx context.Context, gateway string, req WebhookRequest) (*WebhookEvent, error)
}

type PaymentGateway struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Currencies []string `json:"currencies,omitempty"`
	PluginID   string   `json:"plugin_id"`
}

// PaymentRequest is the checkout payload handed to a gateway.
type PaymentRequest struct {
	OrderID     string         `json:"order_id"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	User        User           `json:"user"`
	ReturnURL   string         `json:"return_url,omitempty"`
	CancelURL   string         `json:"cancel_url,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Payment is what a gateway returns after starting a payment.
type Payment struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	RedirectURL   string `json:"redirect_url,omitempty"`
}

// WebhookRequest is a raw gateway callback.
type WebhookRequest struct {
	Headers http.Header `json:"-"`
	Body    []byte      `json:"-"`
}

// WebhookEvent is a verified gateway callback.
type WebhookEvent struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
}

func (r *Registry) PaymentGateways(ctx context.Context) []PaymentGateway {
	return fanOut(r, CategoryPayment, r.payment, "gateways", func(pluginID string, h PaymentHook) ([]PaymentGateway, error) {
		items, err := h.Gateways(ctx)
		items = slices.Clone(items)
		for i := range items {
			items[i].PluginID = pluginID
		}
		return items, err
	})
}

func (r *Registry) ProcessPayment(ctx context.Context, pluginID, gateway string, req PaymentRequest) Result[*Payment] {
	return callOne(r, CategoryPayment, r.payment, pluginID, "process_payment", func(h PaymentHook) (*Payment, error) {
		return h.ProcessPayment(ctx, gateway, req)
	})
}

func (r *Registry) VerifyPaymentWebhook(ctx context.Context, pluginID, gateway string, req WebhookRequest) Result[*WebhookEvent] {
	return callOne(r, CategoryPayment, r.payment, pluginID, "verify_webhook", func(h PaymentHook) (*WebhookEvent, error) {
		return h.VerifyWebhook(ctx, gateway, req)
	})
}
