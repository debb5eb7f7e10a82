package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"reserver/internal/resources"
	"reserver/internal/shared/config"
	"reserver/internal/shared/database"
	"reserver/internal/shared/database/migrations"
	"reserver/internal/users"
)

type Seeder struct {
	db *database.DB
}

func main() {
	fmt.Println("🌱 Starting Reserver Database Seeder...")

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(db.GetPostgreSQL()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	seeder := &Seeder{db: db}

	// Clean database
	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("✅ Database cleaned successfully")

	// Seed data
	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("✅ Database seeded successfully")

	fmt.Println("\n🎉 Seeding completed! Database is ready for testing.")
}

// CleanDatabase truncates all tables in the correct order (respecting foreign key constraints)
func (s *Seeder) CleanDatabase() error {
	// Order matters due to foreign key constraints
	// Delete in reverse dependency order
	tables := []string{
		"webhook_deliveries",
		"webhooks",
		"notifications",
		"waitlist_entries",
		"approval_requests",
		"reservation_audit",
		"recurrence_rules",
		"reservations",
		"blackout_dates",
		"business_hours",
		"resources",
		"users",
	}

	tx := s.db.PostgreSQL.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// Disable foreign key constraints temporarily
	if err := tx.Exec("SET CONSTRAINTS ALL DEFERRED").Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to defer constraints: %w", err)
	}

	for _, table := range tables {
		fmt.Printf("  Truncating table: %s\n", table)
		if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	// Re-enable foreign key constraints
	if err := tx.Exec("SET CONSTRAINTS ALL IMMEDIATE").Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to restore constraints: %w", err)
	}

	return tx.Commit().Error
}

// SeedAll seeds all required data
func (s *Seeder) SeedAll() error {
	ctx := context.Background()

	// Seed users first (no dependencies)
	userIDs, err := s.SeedUsers()
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	// Seed resources with business hours and blackouts
	if err := s.SeedResources(userIDs); err != nil {
		return fmt.Errorf("failed to seed resources: %w", err)
	}

	// Clear Redis cache to ensure fresh state
	if err := s.db.Redis.FlushDB(ctx).Err(); err != nil {
		log.Printf("Warning: Failed to clear Redis cache: %v", err)
	}

	return nil
}

// SeedUsers creates 3 users: 1 admin and 2 regular users. Credentials live
// in the external identity provider; the password column holds a disabled
// marker.
func (s *Seeder) SeedUsers() (map[string]int64, error) {
	fmt.Println("  👤 Seeding users...")

	userIDs := make(map[string]int64)

	usersData := []struct {
		key           string
		firstName     string
		lastName      string
		email         string
		role          users.Role
		reminderHours int
	}{
		{"admin", "Admin", "User", "admin@reserver.dev", users.RoleAdmin, 24},
		{"user1", "Dana", "Fischer", "dana@reserver.dev", users.RoleUser, 2},
		{"user2", "Ravi", "Kumar", "ravi@reserver.dev", users.RoleUser, 0},
	}

	for _, userData := range usersData {
		user := users.User{
			FirstName:     userData.firstName,
			LastName:      userData.lastName,
			Email:         userData.email,
			Password:      "!",
			Role:          userData.role,
			ReminderHours: userData.reminderHours,
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		}

		if err := s.db.PostgreSQL.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user %s: %w", userData.email, err)
		}

		userIDs[userData.key] = user.ID
		fmt.Printf("    ✅ Created user: %s (%s)\n", user.Email, user.Role)
	}

	return userIDs, nil
}

// SeedResources creates a few bookable resources: an open meeting room, an
// approval-gated lab bench and a projector with a maintenance blackout.
func (s *Seeder) SeedResources(userIDs map[string]int64) error {
	fmt.Println("  🏗️ Seeding resources...")

	adminID := userIDs["admin"]

	meetingRoom := resources.Resource{
		Name:           "Meeting Room Alpha",
		Description:    "8-person meeting room with whiteboard and video conferencing",
		Available:      true,
		Status:         resources.StatusAvailable,
		AutoResetHours: 24,
		Tags:           []string{"room", "video"},
		CreatedBy:      adminID,
	}
	if err := s.db.PostgreSQL.Create(&meetingRoom).Error; err != nil {
		return fmt.Errorf("failed to create meeting room: %w", err)
	}
	fmt.Printf("    ✅ Created resource: %s\n", meetingRoom.Name)

	// Weekday business hours for the meeting room, closed on weekends
	for day := 0; day <= 6; day++ {
		hours := resources.BusinessHours{
			ResourceID: meetingRoom.ID,
			DayOfWeek:  day,
			OpenTime:   "08:00",
			CloseTime:  "20:00",
			IsClosed:   day == 0 || day == 6,
		}
		if err := s.db.PostgreSQL.Create(&hours).Error; err != nil {
			return fmt.Errorf("failed to create business hours: %w", err)
		}
	}

	labBench := resources.Resource{
		Name:              "Lab Bench 3",
		Description:       "Electronics lab bench, bookings need sign-off from the lab admin",
		Available:         true,
		Status:            resources.StatusAvailable,
		AutoResetHours:    12,
		RequiresApproval:  true,
		DefaultApproverID: &adminID,
		Tags:              []string{"lab", "restricted"},
		CreatedBy:         adminID,
	}
	if err := s.db.PostgreSQL.Create(&labBench).Error; err != nil {
		return fmt.Errorf("failed to create lab bench: %w", err)
	}
	fmt.Printf("    ✅ Created resource: %s (approval required)\n", labBench.Name)

	projector := resources.Resource{
		Name:           "Portable Projector",
		Description:    "4K projector, check out from the front desk",
		Available:      true,
		Status:         resources.StatusAvailable,
		AutoResetHours: 24,
		Tags:           []string{"equipment"},
		CreatedBy:      adminID,
	}
	if err := s.db.PostgreSQL.Create(&projector).Error; err != nil {
		return fmt.Errorf("failed to create projector: %w", err)
	}
	fmt.Printf("    ✅ Created resource: %s\n", projector.Name)

	// Upcoming maintenance window for the projector
	blackoutStart := time.Now().AddDate(0, 0, 14).Truncate(24 * time.Hour)
	blackout := resources.BlackoutDate{
		ResourceID: projector.ID,
		StartDate:  blackoutStart,
		EndDate:    blackoutStart.AddDate(0, 0, 2),
		Reason:     "Lamp replacement and calibration",
		CreatedBy:  adminID,
	}
	if err := s.db.PostgreSQL.Create(&blackout).Error; err != nil {
		return fmt.Errorf("failed to create blackout: %w", err)
	}
	fmt.Printf("    ✅ Created blackout for: %s\n", projector.Name)

	return nil
}
