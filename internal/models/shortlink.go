package models

import "time"

// Channel канал, через который распространяется ссылка
type Channel string

const (
	ChannelCopy  Channel = "copy"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelQR    Channel = "qr"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelCopy, ChannelEmail, ChannelSMS, ChannelQR:
		return true
	}
	return false
}

// ResourceType на что концептуально указывает ссылка
type ResourceType string

const (
	ResourceRentcard ResourceType = "rentcard"
	ResourceProperty ResourceType = "property"
)

func (r ResourceType) Valid() bool {
	return r == ResourceRentcard || r == ResourceProperty
}

type Shortlink struct {
	ID            int64        `json:"id"`
	Slug          string       `json:"slug"`
	TargetURL     string       `json:"target_url"`
	ShareTokenID  *int64       `json:"share_token_id,omitempty"`
	TenantID      *int64       `json:"tenant_id,omitempty"`
	LandlordID    *int64       `json:"landlord_id,omitempty"`
	PropertyID    *int64       `json:"property_id,omitempty"`
	ResourceType  ResourceType `json:"resource_type"`
	ResourceID    int64        `json:"resource_id"`
	Channel       Channel      `json:"channel"`
	ClickCount    int64        `json:"click_count"`
	LastClickedAt *time.Time   `json:"last_clicked_at,omitempty"`
	Active        bool         `json:"active"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

func (l *Shortlink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// OwnedBy проверяет, принадлежит ли ссылка владельцу
func (l *Shortlink) OwnedBy(owner Owner) bool {
	switch owner.Role {
	case RoleTenant:
		return l.TenantID != nil && *l.TenantID == owner.ID
	case RoleLandlord:
		return l.LandlordID != nil && *l.LandlordID == owner.ID
	}
	return false
}

type CreateShortlinkInput struct {
	TargetURL    string
	Channel      Channel
	ResourceType ResourceType
	ResourceID   int64
	ShareTokenID *int64
	PropertyID   *int64
	ExpiresAt    *time.Time
	Owner        Owner
}

// ResolveRequest метаданные запроса, разрешающего slug
type ResolveRequest struct {
	Slug        string
	Channel     Channel // пустой, если канал не передан явно
	Fingerprint string
	Device      DeviceInfo
	Location    LocationInfo
	Referrer    string
	SessionID   string
	UserID      *int64
}

type ShortlinkStats struct {
	Slug           string           `json:"slug"`
	ClickCount     int64            `json:"click_count"`
	RecordedClicks int64            `json:"recorded_clicks"`
	UniqueClicks   int64            `json:"unique_clicks"`
	Channels       []BreakdownEntry `json:"channels"`
}
