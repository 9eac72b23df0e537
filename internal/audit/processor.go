package audit

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"erms/api/internal/events"
)

// Processor writes one structured audit line per auth event. Reuse detection
// is logged at warn level since it signals a possibly stolen token.
type Processor struct {
	log zerolog.Logger
}

func NewProcessor(log zerolog.Logger) *Processor {
	return &Processor{log: log}
}

// Handle never fails on malformed entries: they are logged and acknowledged
// so a bad entry cannot block the group.
func (p *Processor) Handle(_ context.Context, msg redis.XMessage) error {
	event, err := events.Decode(msg.Values)
	if err != nil {
		p.log.Error().Err(err).Str("message_id", msg.ID).Msg("dropping malformed auth event")
		return nil
	}

	level := zerolog.InfoLevel
	switch event.Type {
	case events.TypeReuseDetected:
		level = zerolog.WarnLevel
	case events.TypeLogin, events.TypeRefresh, events.TypeLogout,
		events.TypeSessionsRevoked, events.TypePasswordChanged, events.TypeAccountDisabled:
	default:
		p.log.Warn().Str("type", string(event.Type)).Str("message_id", msg.ID).Msg("unknown auth event type")
		return nil
	}

	entry := p.log.WithLevel(level).
		Str("message_id", msg.ID).
		Str("event", string(event.Type)).
		Str("user_id", event.UserID).
		Time("occurred_at", event.OccurredAt)
	if event.Reason != "" {
		entry = entry.Str("reason", event.Reason)
	}
	entry.Msg("auth audit")
	return nil
}
