package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cafetrace/internal/client"
	"github.com/alfredjeanlab/cafetrace/internal/events"
	"github.com/alfredjeanlab/cafetrace/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch [microlot-id]",
	Short: "Stream ledger events as they are committed",
	Long: `Stream ledger events as they are committed.

Events come from NATS when CAFETRACE_NATS_URL (or the active profile's NATS
URL) is set, otherwise from the server's /v1/events/stream endpoint. The
HTTP stream resumes from the last event seen after a disconnect.`,
	GroupID:           "views",
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, _ := cmd.Flags().GetStringSlice("topic")
		if len(topics) == 0 {
			topics = []string{events.TopicAll}
		}
		f := &watchFilter{topics: topics}
		if len(args) == 1 {
			f.microlotID = args[0]
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		if natsURL := envOrProfile("CAFETRACE_NATS_URL", currentProfile().NATS, ""); natsURL != "" {
			return watchNATS(ctx, out, natsURL, f)
		}
		return watchStream(ctx, out, f)
	},
}

type watchFilter struct {
	topics     []string
	microlotID string
}

func (f *watchFilter) match(msg events.Message) bool {
	matched := false
	for _, p := range f.topics {
		if events.MatchTopic(p, msg.Topic) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	return f.microlotID == "" || events.MicrolotID(msg.Data) == f.microlotID
}

// watchNATS subscribes to the bus directly.
func watchNATS(ctx context.Context, out io.Writer, natsURL string, f *watchFilter) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if f.match(msg) {
				printWatchLine(out, msg)
			}
		}
	}
}

// watchStream follows the server's SSE endpoint, reconnecting with backoff
// and resuming from the last event ID.
func watchStream(ctx context.Context, out io.Writer, f *watchFilter) error {
	c := client.NewHTTPClient(httpURL, client.Options{Token: authToken, Actor: actor})
	lastID := ""
	backoff := time.Second
	for {
		err := c.StreamEvents(ctx, f.topics, lastID, func(ev client.StreamEvent) error {
			lastID = ev.ID
			backoff = time.Second
			if f.match(ev.Message) {
				printWatchLine(out, ev.Message)
			}
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("event stream: %w", err)
		}
		if err != nil {
			log.Printf("stream: %v (retrying in %s)", err, backoff)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func printWatchLine(w io.Writer, msg events.Message) {
	if jsonOutput {
		fmt.Fprintf(w, "{\"topic\":%q,\"data\":%s}\n", msg.Topic, msg.Data)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ui.RenderMuted(time.Now().Format("15:04:05")), formatEvent(msg))
}

// formatEvent renders one bus message as a single human-readable line.
func formatEvent(msg events.Message) string {
	switch msg.Topic {
	case events.TopicMicrolotCreated:
		var p events.MicrolotCreated
		if json.Unmarshal(msg.Data, &p) == nil && p.Microlot != nil {
			return fmt.Sprintf("%s %s (%s, %.1f kg)",
				ui.RenderAccent("created"), p.Microlot.ID, p.Microlot.Code, p.Microlot.QuantityKg)
		}
	case events.TopicMicrolotDeactivated:
		var p events.MicrolotDeactivated
		if json.Unmarshal(msg.Data, &p) == nil {
			return fmt.Sprintf("%s %s by %s", ui.RenderMuted("deactivated"), p.MicrolotID, p.DeactivatedBy)
		}
	case events.TopicEventAppended:
		var p events.EventAppended
		if json.Unmarshal(msg.Data, &p) == nil && p.Event != nil {
			return fmt.Sprintf("%s %s #%d %s -> %s",
				ui.RenderAccent("appended"), p.Event.MicrolotID, p.Event.BlockNumber, p.Event.EventType, p.Status)
		}
	case events.TopicQualityRecorded:
		var p events.QualityRecorded
		if json.Unmarshal(msg.Data, &p) == nil && p.Record != nil {
			return fmt.Sprintf("%s %s %s %s",
				ui.RenderAccent("quality"), p.Record.MicrolotID, p.Record.TestType, ui.RenderCheck(p.Record.Passed, "passed", "failed"))
		}
	case events.TopicCertificationAttached, events.TopicCertificationRevoked:
		var p events.CertificationAttached
		if json.Unmarshal(msg.Data, &p) == nil && p.Certification != nil {
			verb := "certified"
			if msg.Topic == events.TopicCertificationRevoked {
				verb = "revoked"
			}
			return fmt.Sprintf("%s %s %s %s",
				ui.RenderAccent(verb), p.Certification.MicrolotID, p.Certification.Type, p.Certification.CertificateNumber)
		}
	case events.TopicIntegrityViolation:
		var p events.IntegrityViolation
		if json.Unmarshal(msg.Data, &p) == nil {
			return fmt.Sprintf("%s %s at block %d: %s",
				ui.RenderFail("integrity"), p.MicrolotID, p.BrokenAtBlock, p.Reason)
		}
	case events.TopicIntegrityResolved:
		var p events.IntegrityResolved
		if json.Unmarshal(msg.Data, &p) == nil {
			return fmt.Sprintf("%s %s by %s", ui.RenderOK("resolved"), p.MicrolotID, p.ResolvedBy)
		}
	}
	return fmt.Sprintf("%s %s", msg.Topic, truncate(string(msg.Data), 120))
}

func init() {
	watchCmd.Flags().StringSlice("topic", nil, "topic pattern to follow (repeatable, default cafetrace.>)")
}
