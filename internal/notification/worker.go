package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"flats-rental-backend/internal/host"
	"flats-rental-backend/internal/ledger"
	"flats-rental-backend/internal/logging"
	"flats-rental-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job identifies a unit that became bookable again.
type Job struct {
	Ledger string
	Unit   uint64
	Name   string
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := logging.Logger.WithField("worker", id)
	log.Debug("Notification worker started")
	for {
		select {
		case job := <-wp.jobs:
			log.WithFields(logrus.Fields{"ledger": job.Ledger, "unit": job.Unit}).Debug("Processing unit")
			wp.sendNotificationsForUnit(ctx, job)
		case <-ctx.Done():
			log.Debug("Notification worker shutting down")
			return
		}
	}
}

// Dispatch sends a job to the worker pool.
func (wp *WorkerPool) Dispatch(job Job) {
	wp.jobs <- job
}

// OnEvent is a host listener. It queues unit_available events and drops
// them when the queue is full rather than stalling the caller.
func (wp *WorkerPool) OnEvent(ctx context.Context, ev host.Event) {
	if ev.Kind != ledger.EventUnitAvailable {
		return
	}
	unit, ok := ev.Data["unit"].(uint64)
	if !ok {
		return
	}
	name, _ := ev.Data["name"].(string)
	select {
	case wp.jobs <- Job{Ledger: ev.Account, Unit: unit, Name: name}:
	default:
		logging.Logger.WithFields(logrus.Fields{"ledger": ev.Account, "unit": unit}).Warn("Notification queue full; dropping")
	}
}

// sendNotificationsForUnit fetches the unit's subscribers and notifies each.
func (wp *WorkerPool) sendNotificationsForUnit(ctx context.Context, job Job) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_unit_mapping sm ON sm.push_subscription_endpoint = push_subscriptions.endpoint").
		Joins("JOIN units u ON u.id = sm.unit_id").
		Where("u.ledger_account = ? AND u.number = ?", job.Ledger, job.Unit).
		Find(&subscriptions).Error
	if err != nil {
		logging.Logger.WithError(err).WithField("ledger", job.Ledger).Error("Error fetching subscriptions")
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	logging.Logger.Infof("Sending %d notifications for unit %d of %s", len(subscriptions), job.Unit, job.Ledger)

	label := job.Name
	if label == "" {
		label = job.Ledger
	}
	message := fmt.Sprintf("Unit %d at %s is available again!", job.Unit, label)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		logging.Logger.WithError(err).Errorf("Error sending notification to %s", sub.Endpoint)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		logging.Logger.Infof("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Select("Units").Delete(&sub).Error; err != nil {
			logging.Logger.WithError(err).Errorf("Failed to delete expired subscription %s", sub.Endpoint)
		}
	}
}
