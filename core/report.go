package core

import (
	"context"
	"errors"
	"time"
)

// ReportTarget identifies the kind of entity a report points at.
type ReportTarget string

const (
	ReportUser    ReportTarget = "user"
	ReportMessage ReportTarget = "message"
	ReportRoom    ReportTarget = "room"
)

// Report reasons accepted by the ledger.
const (
	ReasonSpam                 = "spam"
	ReasonHarassment           = "harassment"
	ReasonInappropriateContent = "inappropriate_content"
	ReasonFakeProfile          = "fake_profile"
	ReasonOther                = "other"
)

// ReportStatus is the triage state of a report. The core only ever
// writes pending; triage happens outside this system.
type ReportStatus string

const ReportPending ReportStatus = "pending"

var ErrInvalidReport = errors.New("invalid report")

// Report is a single entry in the append-only moderation ledger.
type Report struct {
	ID          int          `json:"id"`
	ReporterID  string       `json:"reporter_id"`
	Target      ReportTarget `json:"target"`
	TargetID    string       `json:"target_id"`
	RoomID      string       `json:"room_id,omitempty"`
	Reason      string       `json:"reason"`
	Description string       `json:"description"`
	Status      ReportStatus `json:"status"`
	Timestamp   time.Time    `json:"timestamp"`
}

// ReportInput is the input for filing a report. RoomID is only
// meaningful for message reports, locating the message's room.
type ReportInput struct {
	ReporterID  string       `json:"reporter_id" validate:"required"`
	Target      ReportTarget `json:"target" validate:"required,oneof=user message room"`
	TargetID    string       `json:"target_id" validate:"required"`
	RoomID      string       `json:"room_id"`
	Reason      string       `json:"reason" validate:"required,oneof=spam harassment inappropriate_content fake_profile other"`
	Description string       `json:"description" validate:"max=500"`
}

func (r *ReportInput) Validate() error {
	if err := validate.Struct(r); err != nil {
		return ErrInvalidReport
	}
	return nil
}

type ReportStore interface {

	// AppendReport files a report with status pending and a
	// server-assigned timestamp.
	AppendReport(ctx context.Context, input ReportInput) error
}
