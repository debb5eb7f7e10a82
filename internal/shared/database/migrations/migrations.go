// Package migrations owns the schema migration step. It lives below the
// domain packages rather than inside package database: repositories import
// database for WithTx, so the model list cannot be referenced from there.
package migrations

import (
	"gorm.io/gorm"

	"reserver/internal/approvals"
	"reserver/internal/notifications"
	"reserver/internal/reservations"
	"reserver/internal/resources"
	"reserver/internal/users"
	"reserver/internal/waitlist"
	"reserver/internal/webhooks"
)

// Models returns every persisted model in dependency order.
func Models() []interface{} {
	return []interface{}{
		&users.User{},
		&resources.Resource{},
		&resources.BusinessHours{},
		&resources.BlackoutDate{},
		&reservations.Reservation{},
		&reservations.RecurrenceRule{},
		&reservations.AuditEntry{},
		&approvals.ApprovalRequest{},
		&waitlist.WaitlistEntry{},
		&notifications.Notification{},
		&webhooks.Webhook{},
		&webhooks.WebhookDelivery{},
	}
}

// Run applies the schema for all registered models.
func Run(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
