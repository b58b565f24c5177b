package reminders

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charlesng35/doctracker/pkg/mail"
)

// Urgency is a presentation level derived from the remaining day count.
type Urgency string

const (
	UrgencyUrgent   Urgency = "urgent"
	UrgencyWarning  Urgency = "warning"
	UrgencyReminder Urgency = "reminder"
	UrgencyAdvance  Urgency = "advance_notice"
)

// UrgencyFor maps days until expiry to an urgency level.
func UrgencyFor(days int) Urgency {
	switch {
	case days <= 1:
		return UrgencyUrgent
	case days <= 7:
		return UrgencyWarning
	case days <= 15:
		return UrgencyReminder
	default:
		return UrgencyAdvance
	}
}

// Label is the subject prefix for the urgency level.
func (u Urgency) Label() string {
	switch u {
	case UrgencyUrgent:
		return "Urgent"
	case UrgencyWarning:
		return "Action needed"
	case UrgencyReminder:
		return "Reminder"
	default:
		return "Heads up"
	}
}

// DaysText renders a day count as "today", "tomorrow" or "in N days".
func DaysText(days int) string {
	switch days {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}

// Notification is a rendered reminder for one document and owner.
type Notification struct {
	DocumentID     string    `json:"document_id"`
	UserID         string    `json:"user_id"`
	Recipient      string    `json:"recipient"`
	DocumentTitle  string    `json:"document_title"`
	DocumentType   string    `json:"document_type,omitempty"`
	ExpirationDate time.Time `json:"expiration_date"`
	DaysUntil      int       `json:"days_until"`
	Interval       int       `json:"interval"`
	Urgency        Urgency   `json:"urgency"`
	Subject        string    `json:"subject"`
	Body           string    `json:"-"`
}

// Message converts the notification into an outbound email.
func (n Notification) Message() mail.Message {
	return mail.Message{
		To:      []string{n.Recipient},
		Subject: n.Subject,
		Body:    n.Body,
		Headers: map[string]string{
			"X-DocTracker-Document": n.DocumentID,
			"X-DocTracker-Interval": strconv.Itoa(n.Interval),
		},
	}
}

// Renderer builds reminder and test messages.
type Renderer struct {
	AppURL string
}

// Render produces the notification for an eligible candidate.
func (r Renderer) Render(c Candidate, policy Policy, el Eligibility) Notification {
	urgency := UrgencyFor(el.DaysUntil)
	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = "Your document"
	}
	when := DaysText(el.DaysUntil)

	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\r\n\r\n", policy.DisplayName)
	fmt.Fprintf(&body, "%s expires %s, on %s.\r\n", title, when, c.ExpirationDate.Format("Monday, January 2, 2006"))
	if c.Type != "" {
		fmt.Fprintf(&body, "Document type: %s\r\n", c.Type)
	}
	body.WriteString("\r\n")
	switch urgency {
	case UrgencyUrgent:
		body.WriteString("Please renew it right away to avoid a lapse.\r\n")
	case UrgencyWarning:
		body.WriteString("Now is a good time to start the renewal.\r\n")
	default:
		body.WriteString("Plan ahead so the renewal is not a rush.\r\n")
	}
	if url := strings.TrimRight(strings.TrimSpace(r.AppURL), "/"); url != "" {
		fmt.Fprintf(&body, "\r\nView the document: %s/documents/%s\r\n", url, c.DocumentID)
	}
	body.WriteString("\r\nYou receive these reminders because notifications are enabled in your DocTracker settings.\r\n")

	return Notification{
		DocumentID:     c.DocumentID,
		UserID:         c.UserID,
		Recipient:      policy.Email,
		DocumentTitle:  title,
		DocumentType:   c.Type,
		ExpirationDate: c.ExpirationDate,
		DaysUntil:      el.DaysUntil,
		Interval:       el.Interval,
		Urgency:        urgency,
		Subject:        fmt.Sprintf("%s: %s expires %s", urgency.Label(), title, when),
		Body:           body.String(),
	}
}

// TestMessage renders the one-off message used to check delivery end to end.
func (r Renderer) TestMessage(recipient string, now time.Time) mail.Message {
	return mail.Message{
		To:      []string{recipient},
		Subject: "DocTracker test notification",
		Body: fmt.Sprintf("This is a test notification sent at %s.\r\n\r\nIf you can read this, reminder delivery is working.\r\n",
			now.UTC().Format(time.RFC1123)),
	}
}
