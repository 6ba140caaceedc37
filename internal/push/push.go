package push

import (
	"context"
	"log/slog"
)

// Notification is one outbound push.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Result is the per-token outcome.
type Result struct {
	Token string
	Err   error
}

// Gateway delivers a notification to a set of device tokens and reports
// per-token success or failure. Failures are the caller's to log; they
// are never fatal to a message send.
type Gateway interface {
	Send(ctx context.Context, tokens []string, n Notification) ([]Result, error)
}

// LogGateway is the dev fallback when no FCM credentials are configured:
// it logs instead of sending.
type LogGateway struct {
	logger *slog.Logger
}

func NewLogGateway() *LogGateway {
	return &LogGateway{logger: slog.With("component", "push")}
}

func (g *LogGateway) Send(ctx context.Context, tokens []string, n Notification) ([]Result, error) {
	g.logger.Info("push (log only)", "tokens", len(tokens), "title", n.Title, "body", n.Body)
	results := make([]Result, len(tokens))
	for i, t := range tokens {
		results[i] = Result{Token: t}
	}
	return results, nil
}
