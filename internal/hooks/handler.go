package hooks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/cafetrace/internal/events"
)

// Response summarises the hooks run for one message.
type Response struct {
	Ran      []string `json:"ran,omitempty"` // hook names
	Warnings []string `json:"warnings,omitempty"`
}

// Handler runs the hooks whose topic matches each incoming message.
type Handler struct {
	hooks  []Hook
	logger *slog.Logger
}

// NewHandler creates a handler for the given hooks.
func NewHandler(hooks []Hook, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hooks: hooks, logger: logger}
}

// HandleMessage runs every matching hook in declaration order. The raw
// payload is written to each command's stdin and summarised in
// CAFETRACE_* environment variables.
func (h *Handler) HandleMessage(ctx context.Context, msg events.Message) Response {
	var resp Response
	env := map[string]string{
		"CAFETRACE_TOPIC":       msg.Topic,
		"CAFETRACE_MICROLOT_ID": events.MicrolotID(msg.Data),
	}

	for _, hook := range h.hooks {
		if !events.MatchTopic(hook.Topic, msg.Topic) {
			continue
		}
		env["CAFETRACE_HOOK"] = hook.Name
		result := hook.Run(ctx, env, msg.Data)
		resp.Ran = append(resp.Ran, hook.Name)

		if result.Err != nil && hook.OnFailure != OnFailureIgnore {
			resp.Warnings = append(resp.Warnings,
				fmt.Sprintf("hook %s failed on %s (exit %d): %v: %s", hook.Name, msg.Topic, result.ExitCode, result.Err, result.Output))
		}
		h.logger.Info("hooks: executed hook",
			"hook", hook.Name, "topic", msg.Topic, "microlot_id", env["CAFETRACE_MICROLOT_ID"],
			"exit_code", result.ExitCode, "duration", result.Duration)
	}
	return resp
}

// StartSubscriber runs hooks for every ledger event on the bus. It blocks
// until ctx is cancelled or the subscription closes.
func (h *Handler) StartSubscriber(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("hooks: subscribe: %w", err)
	}
	defer cancel()

	h.logger.Info("hooks: subscriber started", "hooks", len(h.hooks))

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hooks: subscriber stopping")
			return nil
		case msg, ok := <-ch:
			if !ok {
				h.logger.Info("hooks: subscription channel closed")
				return nil
			}
			resp := h.HandleMessage(ctx, msg)
			for _, w := range resp.Warnings {
				h.logger.Warn("hooks: " + w)
			}
		}
	}
}
