package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/classcove/tuition-api/internal/models"
	appErrors "github.com/classcove/tuition-api/pkg/errors"
	"github.com/classcove/tuition-api/pkg/mail"
)

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
}

type notificationStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// NotificationService delivers in-app notifications and email. It also
// implements PaymentNotifier so payment decisions reach the student.
type NotificationService struct {
	notifications notificationRepository
	students      notificationStudentRepository
	sender        mail.Sender
	logger        *zap.Logger
	enabled       bool
}

// NewNotificationService constructs the notification service.
func NewNotificationService(notifications notificationRepository, students notificationStudentRepository, sender mail.Sender, logger *zap.Logger, enabled bool) *NotificationService {
	if sender == nil {
		sender = mail.NopSender{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{notifications: notifications, students: students, sender: sender, logger: logger, enabled: enabled}
}

// ListForUser returns a user's notifications.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	notifications, err := s.notifications.ListForUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead flags one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.notifications.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification")
	}
	return nil
}

// MarkAllRead flags every unread notification for the user.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.notifications.MarkAllRead(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications")
	}
	return nil
}

// Notify stores an in-app notification for a user.
func (s *NotificationService) Notify(ctx context.Context, userID, title, body string) error {
	if !s.enabled {
		return nil
	}
	notification := &models.Notification{UserID: userID, Title: title, Body: body}
	if err := s.notifications.Create(ctx, notification); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}
	return nil
}

// PaymentDecided implements PaymentNotifier. Delivery failures are logged
// and never surface to the payment flow.
func (s *NotificationService) PaymentDecided(ctx context.Context, payment *models.PaymentDetail) {
	if !s.enabled {
		return
	}
	student, err := s.students.FindByID(ctx, payment.StudentID)
	if err != nil {
		s.logger.Warn("failed to resolve student for payment notification",
			zap.String("payment_id", payment.ID), zap.Error(err))
		return
	}

	verb := "updated"
	switch payment.Status {
	case models.PaymentStatusApproved:
		verb = "approved"
	case models.PaymentStatusRejected:
		verb = "rejected"
	}
	title := fmt.Sprintf("Payment %s", verb)
	body := fmt.Sprintf("Your payment for %s, %d-%02d has been %s.", payment.ClassName, payment.Year, payment.Month, verb)
	if payment.ActionNote != nil && *payment.ActionNote != "" {
		body += " Note: " + *payment.ActionNote
	}

	if err := s.Notify(ctx, student.UserID, title, body); err != nil {
		s.logger.Warn("failed to store payment notification",
			zap.String("payment_id", payment.ID), zap.Error(err))
	}
	s.sender.Send(mail.Message{
		ToName:    student.FullName,
		ToAddress: student.Email,
		Subject:   title,
		Body:      body,
	})
}
