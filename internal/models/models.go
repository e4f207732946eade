package models

import (
	"time"
)

type Order struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"` // assigned server-side, authoritative for ordering
	OwnerEmail string    `json:"owner_email"`
	OwnerName  string    `json:"owner_name"` // For display convenience
	Category   string    `json:"category"`
	Amount     int64     `json:"amount"` // smallest currency unit
	Note       string    `json:"note"`
}

type DirectoryEntry struct {
	ID          int    `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Enabled     bool   `json:"enabled"`
}

type Stats struct {
	TodayCount   int   `json:"todayCount"`
	TodayRevenue int64 `json:"todayRevenue"`
	MonthRevenue int64 `json:"monthRevenue"`
	TotalOrders  int   `json:"totalOrders"` // orders this month
}
