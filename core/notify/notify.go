// Package notify defines the best-effort messaging sink used to reach heroes
// and customers.
package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/monitoring"
)

// ErrNoToken is returned by backends that need a push token when the
// recipient has none.
var ErrNoToken = errors.New("notify: recipient has no push token")

// Message types carried in Data["type"].
const (
	TypeNewJob       = "new_job"
	TypeNoHeroes     = "no_heroes"
	TypeJobAccepted  = "job_accepted"
	TypeJobCancelled = "job_cancelled"
)

// Message is a push notification addressed to a hero or customer.
type Message struct {
	// Recipient is the hero or customer identifier.
	Recipient string
	// Token is the device push token, if known.
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// Notifier delivers messages. Implementations may block on I/O but must not
// retry forever.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NopNotifier drops every message.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Message) error { return nil }

// Deliver sends msg through n and swallows any failure after logging and
// reporting it. It reports whether the backend accepted the message.
func Deliver(ctx context.Context, n Notifier, msg Message, log logger.Logger) bool {
	if n == nil {
		return false
	}
	err := n.Notify(ctx, msg)
	if err == nil {
		return true
	}
	log = logger.OrNop(log)
	if errors.Is(err, ErrNoToken) {
		log.Infof("%s has no push token, skipping %s notification", msg.Recipient, msg.Data["type"])
		return false
	}
	log.Errorf("notify %s failed: %v", msg.Recipient, err)
	monitoring.CaptureException(err, map[string]string{
		"module":    "notify",
		"recipient": msg.Recipient,
		"type":      msg.Data["type"],
	})
	return false
}

// ServiceLabel renders a service type such as "jump_start" as "JUMP START".
func ServiceLabel(serviceType string) string {
	return strings.ToUpper(strings.ReplaceAll(serviceType, "_", " "))
}

// JobOffer builds the notification offering job to hero.
func JobOffer(job model.Job, hero model.Hero) Message {
	return Message{
		Recipient: hero.ID,
		Token:     hero.PushToken,
		Title:     "New " + ServiceLabel(job.ServiceType) + " Job",
		Body:      "Tap to view details and accept",
		Data: map[string]string{
			"type":         TypeNewJob,
			"job_id":       job.ID,
			"service_type": job.ServiceType,
		},
	}
}

// NoHeroes tells the customer that dispatch was exhausted.
func NoHeroes(c model.Customer, jobID string) Message {
	return Message{
		Recipient: c.ID,
		Token:     c.PushToken,
		Title:     "No Heroes Available",
		Body:      "We couldn't find a hero right now. Please try again.",
		Data:      map[string]string{"type": TypeNoHeroes, "job_id": jobID},
	}
}

// HeroAssigned tells the customer a hero accepted the job.
func HeroAssigned(c model.Customer, jobID string, hero model.Hero) Message {
	name := hero.DisplayName
	if name == "" {
		name = "A hero"
	}
	return Message{
		Recipient: c.ID,
		Token:     c.PushToken,
		Title:     "Hero Assigned!",
		Body:      name + " is on the way. Track their progress in the app.",
		Data:      map[string]string{"type": TypeJobAccepted, "job_id": jobID},
	}
}

// StatusChanged builds the customer notification for a lifecycle change. The
// second return value is false for statuses that notify nobody.
func StatusChanged(c model.Customer, job model.Job, heroName string) (Message, bool) {
	if heroName == "" {
		heroName = "Your hero"
	}
	var title, body string
	switch job.Status {
	case model.JobEnRoute:
		title, body = "Hero En Route", "Your hero is heading to your location."
	case model.JobArrived:
		title, body = "Your Hero Has Arrived!", heroName+" has arrived at your location."
	case model.JobInProgress:
		svc := strings.ReplaceAll(job.ServiceType, "_", " ")
		if svc == "" {
			svc = "service"
		}
		title, body = "Your Hero Has Started Your Service", heroName+" is now working on your "+svc+"."
	case model.JobCompleted:
		title, body = "Service Complete", "Your service has been completed. Please rate your hero!"
	case model.JobCancelled:
		title, body = "Request Cancelled", "Your service request has been cancelled."
	default:
		return Message{}, false
	}
	return Message{
		Recipient: c.ID,
		Token:     c.PushToken,
		Title:     title,
		Body:      body,
		Data:      map[string]string{"type": "job_" + string(job.Status), "job_id": job.ID},
	}, true
}

// JobCancelled tells the bound hero the job was cancelled.
func JobCancelled(hero model.Hero, jobID string) Message {
	return Message{
		Recipient: hero.ID,
		Token:     hero.PushToken,
		Title:     "Job Cancelled",
		Body:      "The job has been cancelled.",
		Data:      map[string]string{"type": TypeJobCancelled, "job_id": jobID},
	}
}
