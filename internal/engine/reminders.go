package engine

import (
	"context"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

// sweepLookback is how far behind "now" the sweep looks, so a reminder due
// just before a tick isn't missed.
const sweepLookback = 10 * time.Minute

// metadata key stamped on a reminder once the sweep has fired it.
const notifiedAtKey = "notified_at"

// UpcomingReminders returns non-archived reminders due within the horizon,
// soonest first. A non-positive horizon or limit uses the engine defaults.
func (e *Engine) UpcomingReminders(ctx context.Context, horizon time.Duration, limit int) ([]types.Memory, error) {
	if horizon <= 0 {
		horizon = e.cfg.ReminderHorizon
	}
	if limit <= 0 {
		limit = 50
	}
	now := time.Now().UTC()
	return e.store.DueReminders(ctx, now, now.Add(horizon), limit)
}

// sweepReminders runs on the cron schedule: it finds reminders that just
// came due, fires the registered callback for each, and stamps them so the
// next tick doesn't fire them again.
func (e *Engine) sweepReminders(ctx context.Context) {
	now := time.Now().UTC()
	due, err := e.store.DueReminders(ctx, now.Add(-sweepLookback), now, 100)
	if err != nil {
		e.log.Error().Err(err).Msg("reminder sweep query failed")
		return
	}

	fired := 0
	for i := range due {
		memory := due[i]
		if _, already := memory.Metadata[notifiedAtKey]; already {
			continue
		}

		e.log.Info().Str("memory_id", memory.ID).Time("due", derefTime(memory.ReminderAt)).
			Str("content", memory.Content).Msg("reminder due")
		if e.onReminderDue != nil {
			e.onReminderDue(memory)
		}

		if memory.Metadata == nil {
			memory.Metadata = map[string]interface{}{}
		}
		memory.Metadata[notifiedAtKey] = now.Format(time.RFC3339)
		memory.UpdatedAt = now
		if err := e.store.Update(ctx, &memory); err != nil {
			e.log.Warn().Err(err).Str("memory_id", memory.ID).Msg("failed to mark reminder notified")
			continue
		}
		fired++
	}

	if fired > 0 {
		e.log.Info().Int("fired", fired).Msg("reminder sweep complete")
	}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
