package model

// User is an account as seen by the admin listing.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role,omitempty"`
	JobCount  int       `json:"job_count"`
	CreatedAt Timestamp `json:"created_at"`
}

// UserList is one page of users.
type UserList struct {
	Users  []User `json:"users"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// AdminStats summarises platform activity.
type AdminStats struct {
	TotalUsers     int            `json:"total_users"`
	TotalJobs      int            `json:"total_jobs"`
	JobsByStatus   map[string]int `json:"jobs_by_status"`
	SuccessRate    float64        `json:"success_rate"`
	JobsLast24h    int            `json:"jobs_last_24h"`
	ActiveJobs     int            `json:"active_jobs"`
	AvgDurationSec float64        `json:"avg_duration_seconds"`
}
