package models

import "time"

// ViewSession группа просмотров одного посетителя, близких по времени
type ViewSession struct {
	ID                  int64      `json:"id"`
	SessionFingerprint  string     `json:"session_fingerprint"`
	ShareTokenID        *int64     `json:"share_token_id,omitempty"`
	TenantID            int64      `json:"tenant_id"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             time.Time  `json:"end_time"`
	TotalViews          int64      `json:"total_views"`
	TotalDuration       int64      `json:"total_duration"` // секунды
	ConvertedToInterest bool       `json:"converted_to_interest"`
	InterestID          *int64     `json:"interest_id,omitempty"`
	ConversionTime      *time.Time `json:"conversion_time,omitempty"`
}

type InterestStatus string

const (
	InterestContacted InterestStatus = "contacted"
	InterestRejected  InterestStatus = "rejected"
	InterestAccepted  InterestStatus = "accepted"
	InterestWithdrawn InterestStatus = "withdrawn"
)

func (s InterestStatus) Valid() bool {
	switch s {
	case InterestContacted, InterestRejected, InterestAccepted, InterestWithdrawn:
		return true
	}
	return false
}

// InterestAnalytics денормализованная строка аналитики по одному интересу
type InterestAnalytics struct {
	ID                   int64           `json:"id"`
	InterestID           int64           `json:"interest_id"`
	TenantID             int64           `json:"tenant_id"`
	LandlordID           *int64          `json:"landlord_id,omitempty"`
	PropertyID           *int64          `json:"property_id,omitempty"`
	SessionID            *int64          `json:"session_id,omitempty"`
	ViewsBeforeInterest  int64           `json:"views_before_interest"`
	TimeToInterest       *int64          `json:"time_to_interest,omitempty"` // минуты
	EngagementScore      int             `json:"engagement_score"`
	LandlordResponseTime *int64          `json:"landlord_response_time,omitempty"` // минуты
	FinalStatus          *InterestStatus `json:"final_status,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type LinkInterestInput struct {
	InterestID         int64
	SessionFingerprint string
	TenantID           int64
	LandlordID         *int64
	PropertyID         *int64
}
