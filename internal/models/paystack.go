package models

import "time"

// PaystackInitRequest is the payload for transaction initialization.
// Amount is in the minor currency unit (pesewas: 100 pesewas = 1 GHS).
type PaystackInitRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount,string"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Channels    []string          `json:"channels,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PaystackInitData is the hosted-checkout target returned by initialization.
type PaystackInitData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// PaystackTransaction is the verified state of a transaction.
// Amount and Fees are in the minor currency unit.
type PaystackTransaction struct {
	ID              int64      `json:"id"`
	Status          string     `json:"status"`
	Reference       string     `json:"reference"`
	Amount          int64      `json:"amount"`
	Fees            int64      `json:"fees"`
	Currency        string     `json:"currency"`
	Channel         string     `json:"channel"`
	GatewayResponse string     `json:"gateway_response"`
	PaidAt          *time.Time `json:"paid_at"`
}
