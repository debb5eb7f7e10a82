package constants

import (
	"fmt"
	"time"
)

// Redis Cache Configuration
// Centralizes cache keys and TTL values for the reserver application.
// Pattern: reserver:{module}:{operation}:{identifier}:{params?}

// ================== CACHE TTL DURATIONS ==================

const (
	TTL_STATIC_LONG  = 24 * time.Hour // very stable data (user profiles)
	TTL_STATIC_SHORT = 6 * time.Hour  // resource schedules

	TTL_SEMI_STATIC_MEDIUM = 2 * time.Hour    // resource details
	TTL_SEMI_STATIC_SHORT  = 1 * time.Hour    // resource listings
	TTL_SEMI_STATIC_QUICK  = 15 * time.Minute // availability views

	TTL_DYNAMIC_MEDIUM = 10 * time.Minute // user reservation listings
	TTL_DYNAMIC_SHORT  = 5 * time.Minute  // dashboard aggregates

	TTL_REALTIME_MEDIUM = 1 * time.Minute // waitlist positions
)

// ================== REDIS KEY PREFIXES ==================

const (
	CACHE_PREFIX = "reserver"
)

// ================== RESOURCES MODULE ==================

const (
	CACHE_KEY_RESOURCES_LIST    = CACHE_PREFIX + ":resources:list"          // + :page:X:limit:Y:status:Z
	CACHE_KEY_RESOURCE_DETAIL   = CACHE_PREFIX + ":resources:detail:id:"    // + resource-id
	CACHE_KEY_RESOURCE_DAY      = CACHE_PREFIX + ":resources:day:id:"       // + resource-id:date:YYYY-MM-DD
	CACHE_KEY_RESOURCE_SCHEDULE = CACHE_PREFIX + ":resources:schedule:id:"  // + resource-id
)

const (
	TTL_RESOURCE_LIST     = TTL_SEMI_STATIC_SHORT
	TTL_RESOURCE_DETAIL   = TTL_SEMI_STATIC_MEDIUM
	TTL_RESOURCE_DAY      = TTL_SEMI_STATIC_QUICK
	TTL_RESOURCE_SCHEDULE = TTL_STATIC_SHORT
)

// ================== DASHBOARD MODULE ==================

const (
	CACHE_KEY_DASHBOARD_USER  = CACHE_PREFIX + ":dashboard:user:id:" // + user-id
	CACHE_KEY_DASHBOARD_ADMIN = CACHE_PREFIX + ":dashboard:admin"
)

const (
	TTL_DASHBOARD = TTL_DYNAMIC_SHORT
)

// ================== RESERVATIONS MODULE ==================

const (
	CACHE_KEY_USER_RESERVATIONS  = CACHE_PREFIX + ":reservations:user:id:"   // + user-id:page:X
	CACHE_KEY_RESERVATION_DETAIL = CACHE_PREFIX + ":reservations:detail:id:" // + reservation-id
)

const (
	TTL_USER_RESERVATIONS  = TTL_DYNAMIC_MEDIUM
	TTL_RESERVATION_DETAIL = TTL_DYNAMIC_MEDIUM
)

// ================== WAITLIST MODULE ==================

const (
	CACHE_KEY_WAITLIST_POSITION = CACHE_PREFIX + ":waitlist:position:resource:" // + resource-id:user:user-id
)

const (
	TTL_WAITLIST_POSITION = TTL_REALTIME_MEDIUM
)

// ================== CACHE INVALIDATION PATTERNS ==================

// Every committed write to a resource or its reservations invalidates these
// patterns; the cache is advisory, so invalidation is fire-and-forget.
const (
	PATTERN_INVALIDATE_RESOURCES_ALL = CACHE_PREFIX + ":resources:*"
	PATTERN_INVALIDATE_DASHBOARD_ALL = CACHE_PREFIX + ":dashboard:*"
	PATTERN_INVALIDATE_USER_ALL      = CACHE_PREFIX + ":*:user:*"
)

// ================== HELPER FUNCTIONS ==================

func BuildResourceListKey(page, limit int, status string) string {
	if status != "" {
		return fmt.Sprintf("%s:page:%d:limit:%d:status:%s", CACHE_KEY_RESOURCES_LIST, page, limit, status)
	}
	return fmt.Sprintf("%s:page:%d:limit:%d", CACHE_KEY_RESOURCES_LIST, page, limit)
}

func BuildResourceDetailKey(resourceID int64) string {
	return fmt.Sprintf("%s%d", CACHE_KEY_RESOURCE_DETAIL, resourceID)
}

func BuildResourceDayKey(resourceID int64, day string) string {
	return fmt.Sprintf("%s%d:date:%s", CACHE_KEY_RESOURCE_DAY, resourceID, day)
}

func BuildUserReservationsKey(userID int64, page int) string {
	return fmt.Sprintf("%s%d:page:%d", CACHE_KEY_USER_RESERVATIONS, userID, page)
}

func BuildWaitlistPositionKey(resourceID, userID int64) string {
	return fmt.Sprintf("%s%d:user:%d", CACHE_KEY_WAITLIST_POSITION, resourceID, userID)
}
