package core

import (
	"context"
	"fmt"
	"log/slog"
)

// BlockedPlaceholder replaces the body of a blocked sender's message at
// render time.
const BlockedPlaceholder = "Mensaje de usuario bloqueado"

// RenderedMessage is a message as presented to one viewer. Hidden marks
// entries whose content was suppressed; the entry itself keeps its ID,
// position and timestamp so the window's order matches what every other
// viewer sees.
type RenderedMessage struct {
	Message
	Hidden bool `json:"hidden"`
}

// Moderation is the per-viewer suppression layer over the shared log
// plus the append-only report ledger. It never mutates the message
// stream: blocking affects what the blocking viewer is shown, nothing
// else.
type Moderation struct {
	profiles ProfileStore
	reports  ReportStore
	logger   *slog.Logger
}

func NewModeration(profiles ProfileStore, reports ReportStore, logger *slog.Logger) *Moderation {
	return &Moderation{
		profiles: profiles,
		reports:  reports,
		logger:   logger,
	}
}

// IsBlocked reports whether the viewer has blocked the sender.
func (m *Moderation) IsBlocked(ctx context.Context, viewerUID, senderUID string) (bool, error) {
	return m.profiles.IsBlocked(ctx, viewerUID, senderUID)
}

// Block adds target to the viewer's blocked set. Idempotent; the
// blocked party is not notified and their stored messages are
// untouched.
func (m *Moderation) Block(ctx context.Context, viewerUID, targetUID string) error {
	return m.profiles.BlockUser(ctx, viewerUID, targetUID)
}

// Blocked returns the viewer's full blocked set.
func (m *Moderation) Blocked(ctx context.Context, viewerUID string) ([]string, error) {
	return m.profiles.BlockedUsers(ctx, viewerUID)
}

// Unblock removes target from the viewer's blocked set. Idempotent.
func (m *Moderation) Unblock(ctx context.Context, viewerUID, targetUID string) error {
	return m.profiles.UnblockUser(ctx, viewerUID, targetUID)
}

// Report appends to the report ledger. Reports never alter the message
// stream or the directory and are not retried.
func (m *Moderation) Report(ctx context.Context, input ReportInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	if err := m.reports.AppendReport(ctx, input); err != nil {
		return fmt.Errorf("AppendReport: %w", err)
	}
	return nil
}

// RenderWindow applies the viewer's blocked set to a message window.
// Suppressed messages keep their slot with a placeholder body and no
// media. If the blocked set cannot be read the window is rendered
// unfiltered; a missing filter reads better than a missing room.
func (m *Moderation) RenderWindow(ctx context.Context, viewerUID string, window []Message) []RenderedMessage {
	blocked := make(map[string]bool)
	uids, err := m.profiles.BlockedUsers(ctx, viewerUID)
	if err != nil {
		m.logger.Warn("blocked set lookup failed",
			slog.String("viewer", viewerUID), slog.String("error", err.Error()))
	} else {
		for _, uid := range uids {
			blocked[uid] = true
		}
	}

	rendered := make([]RenderedMessage, 0, len(window))
	for _, message := range window {
		r := RenderedMessage{Message: message}
		if blocked[message.SenderID] {
			r.Text = BlockedPlaceholder
			r.MediaURL = ""
			r.Hidden = true
		}
		rendered = append(rendered, r)
	}
	return rendered
}
