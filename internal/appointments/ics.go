package appointments

import (
	"context"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

// Default event length; appointments carry only a start time.
const eventDuration = time.Hour

const prodID = "-//Legal Bid Platform//Appointments//EN"

// ExportICS renders the appointment as an iCalendar document with one VEVENT.
func (l *Ledger) ExportICS(ctx context.Context, actor models.Actor, id uuid.UUID) (string, error) {
	a, err := l.Get(ctx, actor, id)
	if err != nil {
		return "", err
	}
	return renderICS(a, l.clock.Now()), nil
}

func renderICS(a *models.Appointment, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(prodID)

	ev := cal.AddEvent(a.ID.String() + "@legal-bid")
	ev.SetDtStampTime(stamp.UTC())
	ev.SetCreatedTime(a.CreatedAt.UTC())
	ev.SetModifiedAt(a.UpdatedAt.UTC())
	ev.SetStartAt(a.Date.UTC())
	ev.SetEndAt(a.Date.UTC().Add(eventDuration))
	ev.SetSummary(fmt.Sprintf("Legal %s", a.Type))
	if a.Notes != "" {
		ev.SetDescription(a.Notes)
	}
	ev.SetStatus(eventStatus(a.Status))
	return cal.Serialize()
}

func eventStatus(s models.AppointmentStatus) ics.ObjectStatus {
	switch s {
	case models.AppointmentConfirmed, models.AppointmentCompleted:
		return ics.ObjectStatusConfirmed
	case models.AppointmentCancelled:
		return ics.ObjectStatusCancelled
	default:
		return ics.ObjectStatusTentative
	}
}
