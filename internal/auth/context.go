package auth

import "context"

type contextKey string

const (
	identityKey contextKey = "washdesk-identity"
	outcomeKey  contextKey = "washdesk-auth-outcome"
)

// WithIdentity returns a context carrying the resolved caller.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFrom extracts the resolved caller, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityKey).(*Identity)
	return identity
}

// WithOutcome returns a context carrying a transparent-refresh outcome.
func WithOutcome(ctx context.Context, outcome *Outcome) context.Context {
	return context.WithValue(ctx, outcomeKey, outcome)
}

// OutcomeFrom extracts the refresh outcome, or nil when no refresh occurred.
func OutcomeFrom(ctx context.Context) *Outcome {
	outcome, _ := ctx.Value(outcomeKey).(*Outcome)
	return outcome
}
