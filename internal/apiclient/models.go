package apiclient

import "time"

// Role is a dashboard user's role.
type Role string

const (
	RoleManager Role = "MANAGER"
	RoleHost    Role = "HOST"
)

// User is the authenticated account as returned by /auth/login and /auth/me.
type User struct {
	ID             int64  `json:"id"`
	Role           Role   `json:"role"`
	FullName       string `json:"full_name"`
	Username       string `json:"username"`
	Email          string `json:"email,omitempty"`
	TelegramUserID string `json:"telegram_user_id,omitempty"`
}

// Credentials are the login fields, keyed by the wire name configured for
// the backend (email/password, telegram_user_id/username, ...).
type Credentials map[string]string

// LoginResult is the data member of a successful /auth/login response.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ReportStatus is the verification state of a report.
type ReportStatus string

const (
	StatusPending  ReportStatus = "PENDING"
	StatusVerified ReportStatus = "VERIFIED"
	StatusRejected ReportStatus = "REJECTED"
)

// Valid reports whether s is one of the known statuses.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// Report is one self-reported live session.
type Report struct {
	ID            int64        `json:"id"`
	HostFullName  string       `json:"host_full_name"`
	HostUsername  string       `json:"host_username"`
	ReportedGMV   Money        `json:"reported_gmv"`
	Status        ReportStatus `json:"status"`
	LiveDuration  string       `json:"live_duration,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	ScreenshotURL string       `json:"screenshot_url,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	VerifiedAt    *time.Time   `json:"verified_at,omitempty"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ReportPage is the data member of GET /reports and /reports/my-reports.
type ReportPage struct {
	Reports    []Report   `json:"reports"`
	Pagination Pagination `json:"pagination"`
}

// Statistics is the data member of GET /reports/statistics.
type Statistics struct {
	TotalReports     int   `json:"total_reports"`
	PendingReports   int   `json:"pending_reports"`
	VerifiedReports  int   `json:"verified_reports"`
	RejectedReports  int   `json:"rejected_reports"`
	TotalVerifiedGMV Money `json:"total_verified_gmv"`
	AvgVerifiedGMV   Money `json:"avg_verified_gmv"`
}

// HostStat is one row of GET /reports/monthly-host-stats.
type HostStat struct {
	HostID          int64   `json:"host_id"`
	FullName        string  `json:"full_name"`
	Username        string  `json:"username"`
	TotalReports    int     `json:"total_reports"`
	VerifiedReports int     `json:"verified_reports"`
	TotalGMV        Money   `json:"total_gmv"`
	TotalHours      float64 `json:"total_hours"`
}

// HostStatsReport is the data member of GET /reports/monthly-host-stats.
type HostStatsReport struct {
	Month int        `json:"month"`
	Year  int        `json:"year"`
	Hosts []HostStat `json:"hosts"`
}

// AvailableMonth is one entry of GET /reports/available-months.
type AvailableMonth struct {
	Month       int    `json:"month"`
	Year        int    `json:"year"`
	DisplayName string `json:"display_name"`
	ReportCount int    `json:"report_count"`
}

// HostStats aggregates a host's reports.
type HostStats struct {
	TotalReports    int   `json:"total_reports"`
	VerifiedReports int   `json:"verified_reports"`
	TotalGMV        Money `json:"total_gmv"`
}

// Host is a streamer account managed by managers.
type Host struct {
	ID             int64     `json:"id"`
	TelegramUserID string    `json:"telegram_user_id"`
	Username       string    `json:"username"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email,omitempty"`
	IsActive       bool      `json:"is_active"`
	IsApproved     bool      `json:"is_approved"`
	Stats          HostStats `json:"stats"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// HostInput is the editable subset of a host.
type HostInput struct {
	TelegramUserID string `json:"telegram_user_id" validate:"required,numeric"`
	Username       string `json:"username" validate:"required,max=32"`
	FullName       string `json:"full_name" validate:"required,max=100"`
	Email          string `json:"email,omitempty" validate:"omitempty,email"`
	IsActive       bool   `json:"is_active"`
	IsApproved     bool   `json:"is_approved"`
}

// PendingUser is a registration waiting for a manager decision.
type PendingUser struct {
	ID             int64     `json:"id"`
	FullName       string    `json:"full_name"`
	Username       string    `json:"username"`
	TelegramUserID string    `json:"telegram_user_id"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}
