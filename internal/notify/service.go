package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"time"

	"github.com/redis/go-redis/v9"

	"larpledger/internal/logger"
	"larpledger/internal/metrics"
)

const (
	adminQueue    = "notify:admin"
	einvoiceQueue = "tasks:einvoice"
	badgeQueue    = "tasks:badges"
)

// AdminAlert is an email job destined for the organizers.
type AdminAlert struct {
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

// Task is a deferred unit for an external consumer (e-invoice emitter,
// badge awarder). At-least-once: consumers must tolerate replays.
type Task struct {
	InvoiceID int64     `json:"invoice_id,omitempty"`
	MemberID  int64     `json:"member_id,omitempty"`
	Badge     string    `json:"badge,omitempty"`
	Created   time.Time `json:"created"`
}

// Service queues deferred side effects on redis lists and drains the admin
// alert queue itself over SMTP. E-invoice and badge tasks are consumed by
// external collaborators.
type Service struct {
	redis      *redis.Client
	adminEmail string
	from       string
	smtpHost   string
	smtpPort   string
	smtpUser   string
	smtpPass   string
}

func New(adminEmail, from, smtpHost, smtpPort, smtpUser, smtpPass, redisAddr string) *Service {
	return &Service{
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
		adminEmail: adminEmail,
		from:       from,
		smtpHost:   smtpHost,
		smtpPort:   smtpPort,
		smtpUser:   smtpUser,
		smtpPass:   smtpPass,
	}
}

// NotifyAdmins queues an alert; it never blocks or fails the caller.
func (s *Service) NotifyAdmins(ctx context.Context, subject, body string) {
	job := AdminAlert{Subject: subject, Body: body, Created: time.Now()}
	data, err := json.Marshal(job)
	if err != nil {
		logger.Errorf("Failed to marshal admin alert: %v", err)
		return
	}
	if err := s.redis.LPush(ctx, adminQueue, data).Err(); err != nil {
		metrics.RecordNotification("admin", "queue_failed")
		logger.Errorf("Failed to queue admin alert %q: %v", subject, err)
		return
	}
	metrics.RecordNotification("admin", "queued")
	logger.Infof("Admin alert queued: %s", subject)
}

func (s *Service) QueueEInvoice(ctx context.Context, invoiceID int64) {
	s.queueTask(ctx, einvoiceQueue, "einvoice", Task{InvoiceID: invoiceID, Created: time.Now()})
}

func (s *Service) AwardBadge(ctx context.Context, memberID int64, badge string) {
	s.queueTask(ctx, badgeQueue, "badge", Task{MemberID: memberID, Badge: badge, Created: time.Now()})
}

func (s *Service) queueTask(ctx context.Context, queue, kind string, task Task) {
	data, err := json.Marshal(task)
	if err != nil {
		logger.Errorf("Failed to marshal %s task: %v", kind, err)
		return
	}
	if err := s.redis.LPush(ctx, queue, data).Err(); err != nil {
		metrics.RecordNotification(kind, "queue_failed")
		logger.Errorf("Failed to queue %s task: %v", kind, err)
		return
	}
	metrics.RecordNotification(kind, "queued")
}

// Start drains the admin alert queue until the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	logger.Info("Notification service started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Notification service stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, adminQueue).Result()
	if err != nil {
		return
	}

	var job AdminAlert
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Errorf("Bad admin alert data: %v", err)
		return
	}

	job.Tries++
	if err := s.sendNow(job); err != nil {
		logger.Errorf("Failed to send admin alert %q: %v", job.Subject, err)

		if job.Tries < 3 {
			time.Sleep(5 * time.Second)
			data, _ := json.Marshal(job)
			s.redis.LPush(context.Background(), adminQueue, data)
		} else {
			metrics.RecordNotification("admin", "failed")
			s.saveFailed(job, err)
		}
		return
	}

	metrics.RecordNotification("admin", "sent")
	logger.Infof("Admin alert sent: %s", job.Subject)
}

func (s *Service) sendNow(job AdminAlert) error {
	message := fmt.Sprintf("From: %s\r\n", s.from)
	message += fmt.Sprintf("To: %s\r\n", s.adminEmail)
	message += fmt.Sprintf("Subject: %s\r\n", job.Subject)
	message += "\r\n" + job.Body

	var auth smtp.Auth
	if s.smtpUser != "" && s.smtpPass != "" {
		auth = smtp.PlainAuth("", s.smtpUser, s.smtpPass, s.smtpHost)
	}

	addr := s.smtpHost + ":" + s.smtpPort
	return smtp.SendMail(addr, auth, s.from, []string{s.adminEmail}, []byte(message))
}

func (s *Service) saveFailed(job AdminAlert, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), adminQueue+":failed", data)
	logger.Errorf("Admin alert moved to failed queue: %s", job.Subject)
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, adminQueue).Result()
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}
