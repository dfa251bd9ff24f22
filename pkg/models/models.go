package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleClient Role = "client"
	RoleLawyer Role = "lawyer"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleLawyer, RoleAdmin:
		return true
	}
	return false
}

// CaseCategory is the closed set of legal areas a case can be filed under.
type CaseCategory string

const (
	CategoryContract CaseCategory = "contract"
	CategoryFamily   CaseCategory = "family"
	CategoryCriminal CaseCategory = "criminal"
	CategoryProperty CaseCategory = "property"
	CategoryLabor    CaseCategory = "labor"
	CategoryOther    CaseCategory = "other"
)

var Categories = []CaseCategory{
	CategoryContract, CategoryFamily, CategoryCriminal,
	CategoryProperty, CategoryLabor, CategoryOther,
}

func (c CaseCategory) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// AppointmentType describes what kind of meeting was booked.
type AppointmentType string

const (
	AppointmentConsultation AppointmentType = "consultation"
	AppointmentMeeting      AppointmentType = "meeting"
	AppointmentHearing      AppointmentType = "hearing"
	AppointmentCall         AppointmentType = "call"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case AppointmentConsultation, AppointmentMeeting, AppointmentHearing, AppointmentCall:
		return true
	}
	return false
}

// Actor is the authenticated caller of a ledger operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) Is(role Role) bool { return a.Role == role }

/* =============================== Entities =============================== */

// User is the slice of the user directory the core reads. Accounts and credentials
// are owned elsewhere; the rating aggregate is the only column written here.
type User struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email         string    `gorm:"uniqueIndex;not null" json:"email"`
	Username      string    `gorm:"not null;default:''" json:"username"`
	Role          Role      `gorm:"type:varchar(20);not null;index" json:"role"`
	AverageRating float64   `gorm:"not null;default:0" json:"average_rating"`
	RatingCount   int       `gorm:"not null;default:0" json:"rating_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Case represents a legal case created by a client.
type Case struct {
	ID          uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID    uuid.UUID    `gorm:"type:uuid;not null;index" json:"client_id"`
	Description string       `gorm:"type:varchar(500);not null" json:"description"`
	Category    CaseCategory `gorm:"type:varchar(20);not null;index" json:"category"`
	Deadline    time.Time    `gorm:"not null" json:"deadline"`
	Status      CaseStatus   `gorm:"type:varchar(20);not null;default:'posted';index" json:"status"`

	// Set together by bid acceptance; both nil while posted.
	AssignedLawyerID *uuid.UUID `gorm:"type:uuid;index" json:"assigned_lawyer_id"`
	WinningBidID     *uuid.UUID `gorm:"type:uuid" json:"winning_bid_id"`
	AssignedAt       *time.Time `json:"assigned_at,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Files     []CaseFile     `json:"documents,omitempty"`
	Deadlines []CaseDeadline `json:"deadlines,omitempty"`
	Notes     []CaseNote     `json:"notes,omitempty"`
	Bids      []Bid          `json:"-"`
}

// CaseFile is a reference to a document held by the file store.
type CaseFile struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID       uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	Key          string    `gorm:"not null" json:"key"`
	Mime         string    `gorm:"not null" json:"mime"`
	Size         int       `gorm:"not null" json:"size"`
	OriginalName string    `json:"original_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// CaseDeadline is an additional dated milestone on a case.
type CaseDeadline struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"case_id"`
	Title        string     `gorm:"not null" json:"title"`
	Date         time.Time  `gorm:"not null;index" json:"date"`
	Completed    bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	AssigneeID   *uuid.UUID `gorm:"type:uuid" json:"assignee_id,omitempty"`
	ReminderSent bool       `gorm:"not null;default:false" json:"reminder_sent"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CaseNote is a free-text note left on a case by one of its parties.
type CaseNote struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID    uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	AuthorID  uuid.UUID `gorm:"type:uuid;not null" json:"author_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Bid represents a lawyer's priced offer on a case.
type Bid struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID      uuid.UUID `gorm:"type:uuid;not null;index:idx_bid_case_lawyer,unique" json:"case_id"`
	LawyerID    uuid.UUID `gorm:"type:uuid;not null;index:idx_bid_case_lawyer,unique;index" json:"lawyer_id"`
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	Comment     string    `gorm:"type:varchar(200)" json:"comment"`
	Status      BidStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Appointment is a scheduled meeting between a client and a lawyer.
type Appointment struct {
	ID       uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID uuid.UUID         `gorm:"type:uuid;not null;index" json:"client_id"`
	LawyerID uuid.UUID         `gorm:"type:uuid;not null;index" json:"lawyer_id"`
	CaseID   *uuid.UUID        `gorm:"type:uuid;index" json:"case_id,omitempty"`
	Date     time.Time         `gorm:"not null;index" json:"date"`
	Status   AppointmentStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Type     AppointmentType   `gorm:"type:varchar(20);not null" json:"type"`
	Notes    string            `gorm:"type:text" json:"notes,omitempty"`

	// Reminder flags only move false -> true, except a reschedule clears both.
	ReminderSent24h bool `gorm:"column:reminder_sent_24h;not null;default:false" json:"reminder_sent_24h"`
	ReminderSent1h  bool `gorm:"column:reminder_sent_1h;not null;default:false" json:"reminder_sent_1h"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rating is the per-(client, case) rating request and, once completed, the rating.
type Rating struct {
	ID             uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID       uuid.UUID    `gorm:"type:uuid;not null;index:idx_rating_client_case,unique" json:"client_id"`
	CaseID         uuid.UUID    `gorm:"type:uuid;not null;index:idx_rating_client_case,unique" json:"case_id"`
	LawyerID       uuid.UUID    `gorm:"type:uuid;not null;index" json:"lawyer_id"`
	Rating         *int         `json:"rating,omitempty"`
	Comment        string       `gorm:"type:varchar(500)" json:"comment,omitempty"`
	Status         RatingStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	LastRemindedAt *time.Time   `json:"last_reminded_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Notification is a persisted message to a user, or to every user of a role when
// RecipientID is nil.
type Notification struct {
	ID                  uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RecipientID         *uuid.UUID         `gorm:"type:uuid;index" json:"recipient_id,omitempty"`
	RecipientRole       Role               `gorm:"type:varchar(20);index" json:"recipient_role,omitempty"`
	Message             string             `gorm:"type:text;not null" json:"message"`
	Type                NotificationType   `gorm:"type:varchar(40);not null" json:"type"`
	Status              NotificationStatus `gorm:"type:varchar(20);not null;default:'unread';index" json:"status"`
	IsAdminNotification bool               `gorm:"not null;default:false;index" json:"is_admin_notification"`
	Metadata            datatypes.JSON     `json:"metadata,omitempty"`

	// DedupeKey makes scheduled notifications idempotent across overlapping sweeps.
	DedupeKey *string `gorm:"uniqueIndex" json:"-"`

	// Email outbox state.
	EmailStatus    DeliveryStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"-"`
	EmailAttempts  int            `gorm:"not null;default:0" json:"-"`
	EmailLastError string         `json:"-"`

	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NotificationRead is one user's read receipt for a role broadcast. Broadcast rows
// are shared, so their read state lives here instead of on the notification.
type NotificationRead struct {
	NotificationID uuid.UUID `gorm:"type:uuid;primaryKey" json:"notification_id"`
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	ReadAt         time.Time `gorm:"not null" json:"read_at"`
}
