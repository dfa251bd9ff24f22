package models

/*
Every entity with a lifecycle gets a closed status type and a transition table.
Ledgers ask the table before writing and then condition the write on the status
they observed, so an illegal move is rejected in one place.
*/

type transitions[S comparable] map[S][]S

func (t transitions[S]) allows(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (t transitions[S]) sourcesOf(to S) []S {
	var out []S
	for from, nexts := range t {
		for _, n := range nexts {
			if n == to {
				out = append(out, from)
			}
		}
	}
	return out
}

/* ------------------------------- Case ---------------------------------- */

// CaseStatus defines lifecycle states for a case.
type CaseStatus string

const (
	CasePosted   CaseStatus = "posted"
	CaseAssigned CaseStatus = "assigned"
	CaseClosed   CaseStatus = "closed"
)

var caseTransitions = transitions[CaseStatus]{
	CasePosted:   {CaseAssigned, CaseClosed},
	CaseAssigned: {CaseClosed},
}

func (s CaseStatus) CanTransitionTo(next CaseStatus) bool { return caseTransitions.allows(s, next) }
func (s CaseStatus) Terminal() bool                       { return len(caseTransitions[s]) == 0 }

// CaseSourcesOf lists the statuses a case may move to `to` from.
func CaseSourcesOf(to CaseStatus) []CaseStatus { return sorted(caseTransitions.sourcesOf(to), caseOrder) }

/* -------------------------------- Bid ---------------------------------- */

// BidStatus defines lifecycle states for a bid.
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

var bidTransitions = transitions[BidStatus]{
	BidPending: {BidAccepted, BidRejected},
}

func (s BidStatus) CanTransitionTo(next BidStatus) bool { return bidTransitions.allows(s, next) }

func (s BidStatus) Valid() bool {
	switch s {
	case BidPending, BidAccepted, BidRejected:
		return true
	}
	return false
}

/* ---------------------------- Appointment ------------------------------ */

// AppointmentStatus defines lifecycle states for an appointment.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

var appointmentTransitions = transitions[AppointmentStatus]{
	AppointmentPending:   {AppointmentConfirmed, AppointmentCancelled},
	AppointmentConfirmed: {AppointmentCompleted, AppointmentCancelled},
}

func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	return appointmentTransitions.allows(s, next)
}

func (s AppointmentStatus) Terminal() bool { return len(appointmentTransitions[s]) == 0 }

// Active appointments can still be rescheduled and reminded.
func (s AppointmentStatus) Active() bool { return !s.Terminal() }

// ActiveAppointmentStatuses is used by queries that must match Active().
var ActiveAppointmentStatuses = []AppointmentStatus{AppointmentPending, AppointmentConfirmed}

// AppointmentSourcesOf lists the statuses an appointment may move to `to` from.
func AppointmentSourcesOf(to AppointmentStatus) []AppointmentStatus {
	return sorted(appointmentTransitions.sourcesOf(to), appointmentOrder)
}

/* ------------------------------- Rating -------------------------------- */

// RatingStatus defines lifecycle states for a rating request.
type RatingStatus string

const (
	RatingPending   RatingStatus = "pending"
	RatingDismissed RatingStatus = "dismissed"
	RatingCompleted RatingStatus = "completed"
)

var ratingTransitions = transitions[RatingStatus]{
	RatingPending:   {RatingDismissed, RatingCompleted},
	RatingDismissed: {RatingCompleted},
}

func (s RatingStatus) CanTransitionTo(next RatingStatus) bool {
	return ratingTransitions.allows(s, next)
}

/* ---------------------------- Notification ----------------------------- */

// NotificationStatus is the read state of a notification.
type NotificationStatus string

const (
	NotificationUnread NotificationStatus = "unread"
	NotificationRead   NotificationStatus = "read"
)

// DeliveryStatus is the email outbox state of a notification.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliveryQueued  DeliveryStatus = "queued"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped"
)

// NotificationType is the closed set of notification kinds.
type NotificationType string

const (
	NotifyCasePosted          NotificationType = "case_posted"
	NotifyCaseClosed          NotificationType = "case_closed"
	NotifyBidPlaced           NotificationType = "bid_placed"
	NotifyBidAccepted         NotificationType = "bid_accepted"
	NotifyBidRejected         NotificationType = "bid_rejected"
	NotifyCaseAssigned        NotificationType = "case_assigned"
	NotifyDeadlineAssigned    NotificationType = "deadline_assigned"
	NotifyDeadlineCompleted   NotificationType = "deadline_completed"
	NotifyDeadlineReminder    NotificationType = "deadline_reminder"
	NotifyAppointment         NotificationType = "appointment"
	NotifyAppointmentReminder NotificationType = "appointment_reminder"
	NotifyRatingPrompt        NotificationType = "rating_prompt"
	NotifyRatingReminder      NotificationType = "rating_reminder"

	// Admin feed.
	NotifyCaseClosedAdmin  NotificationType = "case_closed_admin"
	NotifyBidAcceptedAdmin NotificationType = "bid_accepted_admin"
)

var adminNotificationTypes = map[NotificationType]bool{
	NotifyCaseClosedAdmin:  true,
	NotifyBidAcceptedAdmin: true,
}

// IsAdmin reports whether notifications of this type belong to the admin feed.
func (t NotificationType) IsAdmin() bool { return adminNotificationTypes[t] }

/* ------------------------------ ordering ------------------------------- */

var (
	caseOrder        = []CaseStatus{CasePosted, CaseAssigned, CaseClosed}
	appointmentOrder = []AppointmentStatus{AppointmentPending, AppointmentConfirmed, AppointmentCompleted, AppointmentCancelled}
)

// sorted returns xs in the declaration order given by order, so messages and
// queries built from map iteration stay stable.
func sorted[S comparable](xs []S, order []S) []S {
	out := make([]S, 0, len(xs))
	for _, o := range order {
		for _, x := range xs {
			if x == o {
				out = append(out, x)
			}
		}
	}
	return out
}
