package models

import "time"

type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceBot     DeviceType = "bot"
	DeviceUnknown DeviceType = "unknown"
)

// DeviceInfo сведения об устройстве посетителя (JSONB колонка device)
type DeviceInfo struct {
	Type    DeviceType `json:"type"`
	Browser string     `json:"browser,omitempty"`
	OS      string     `json:"os,omitempty"`
}

// LocationInfo геоданные посетителя (JSONB колонка location)
type LocationInfo struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// ViewSource откуда пришёл просмотр RentCard
type ViewSource string

const (
	SourceQRCode    ViewSource = "qr_code"
	SourceShareLink ViewSource = "share_link"
	SourceDirect    ViewSource = "direct"
	SourceEmail     ViewSource = "email"
	SourceSMS       ViewSource = "sms"
)

func (s ViewSource) Valid() bool {
	switch s {
	case SourceQRCode, SourceShareLink, SourceDirect, SourceEmail, SourceSMS:
		return true
	}
	return false
}

// SourceForChannel сопоставляет канал короткой ссылки источнику просмотра
func SourceForChannel(c Channel) ViewSource {
	switch c {
	case ChannelEmail:
		return SourceEmail
	case ChannelSMS:
		return SourceSMS
	case ChannelQR:
		return SourceQRCode
	}
	return SourceShareLink
}

// ViewAction действие посетителя на странице RentCard
type ViewAction string

const (
	ActionViewedDocuments ViewAction = "viewed_documents"
	ActionViewedReference ViewAction = "viewed_references"
	ActionDownloaded      ViewAction = "downloaded"
	ActionContacted       ViewAction = "contacted"
	ActionShared          ViewAction = "shared"
)

func (a ViewAction) Valid() bool {
	switch a {
	case ActionViewedDocuments, ActionViewedReference, ActionDownloaded, ActionContacted, ActionShared:
		return true
	}
	return false
}

// ViewMetadata закрытый набор метаданных просмотра
type ViewMetadata struct {
	Device          DeviceInfo   `json:"device"`
	Location        LocationInfo `json:"location"`
	DurationSeconds int64        `json:"duration_seconds"`
	Actions         []ViewAction `json:"actions"`
}

// ShortlinkClick неизменяемая запись о переходе по короткой ссылке
type ShortlinkClick struct {
	ID          int64        `json:"id"`
	ShortlinkID int64        `json:"shortlink_id"`
	Channel     Channel      `json:"channel"`
	Fingerprint string       `json:"fingerprint"`
	IsUnique    bool         `json:"is_unique"`
	Device      DeviceInfo   `json:"device"`
	Location    LocationInfo `json:"location"`
	Referrer    string       `json:"referrer,omitempty"`
	SessionID   string       `json:"session_id,omitempty"`
	UserID      *int64       `json:"user_id,omitempty"`
	ClickedAt   time.Time    `json:"clicked_at"`
}

// RentcardView неизменяемая запись о просмотре RentCard
type RentcardView struct {
	ID                int64        `json:"id"`
	ShareTokenID      *int64       `json:"share_token_id,omitempty"`
	TenantID          int64        `json:"tenant_id"`
	ViewerFingerprint string       `json:"viewer_fingerprint"`
	Source            ViewSource   `json:"source"`
	SourceID          string       `json:"source_id,omitempty"`
	Metadata          ViewMetadata `json:"metadata"`
	IsUnique          bool         `json:"is_unique"`
	ViewedAt          time.Time    `json:"viewed_at"`
}

// ClickEvent событие перехода, поступающее в пайплайн записи
type ClickEvent struct {
	ShortlinkID int64        `json:"shortlink_id"`
	Slug        string       `json:"slug"`
	Channel     Channel      `json:"channel"`
	Fingerprint string       `json:"fingerprint"`
	Device      DeviceInfo   `json:"device"`
	Location    LocationInfo `json:"location"`
	Referrer    string       `json:"referrer,omitempty"`
	SessionID   string       `json:"session_id,omitempty"`
	UserID      *int64       `json:"user_id,omitempty"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// ViewEvent событие просмотра, поступающее в пайплайн записи.
// Нужен хотя бы один из ShareTokenID / TenantID.
type ViewEvent struct {
	ShareTokenID      *int64       `json:"share_token_id,omitempty"`
	TenantID          int64        `json:"tenant_id,omitempty"`
	ViewerFingerprint string       `json:"viewer_fingerprint"`
	Source            ViewSource   `json:"source"`
	SourceID          string       `json:"source_id,omitempty"`
	Metadata          ViewMetadata `json:"metadata"`
	OccurredAt        time.Time    `json:"occurred_at"`
}

type EventKind string

const (
	EventClick EventKind = "click"
	EventView  EventKind = "view"
)

// Event элемент очереди записи: заполнено ровно одно поле в соответствии с Kind
type Event struct {
	Kind     EventKind   `json:"kind"`
	Click    *ClickEvent `json:"click,omitempty"`
	View     *ViewEvent  `json:"view,omitempty"`
	Attempts int         `json:"attempts"`
}

func NewClickEvent(e *ClickEvent) *Event {
	return &Event{Kind: EventClick, Click: e}
}

func NewViewEvent(e *ViewEvent) *Event {
	return &Event{Kind: EventView, View: e}
}
