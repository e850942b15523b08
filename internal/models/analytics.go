package models

import (
	"fmt"
	"time"
)

type EntityType string

const (
	EntityTenant   EntityType = "tenant"
	EntityLandlord EntityType = "landlord"
	EntityProperty EntityType = "property"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityTenant, EntityLandlord, EntityProperty:
		return true
	}
	return false
}

// EntityRef ссылка на сущность, по которой строится агрегат
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   int64      `json:"id"`
}

func (r EntityRef) String() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

// Granularity размер временного бакета агрегата
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

var Granularities = []Granularity{Daily, Weekly, Monthly}

func (g Granularity) Valid() bool {
	return g == Daily || g == Weekly || g == Monthly
}

// BucketStart возвращает начало бакета (UTC), содержащего t.
// Недели начинаются с понедельника.
func (g Granularity) BucketStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case Weekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return day
}

// BucketEnd возвращает исключающую границу бакета, начинающегося в start
func (g Granularity) BucketEnd(start time.Time) time.Time {
	switch g {
	case Weekly:
		return start.AddDate(0, 0, 7)
	case Monthly:
		return start.AddDate(0, 1, 0)
	}
	return start.AddDate(0, 0, 1)
}

type BreakdownEntry struct {
	Key        string  `json:"key"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// AggregationMetrics содержимое JSONB колонки metrics
type AggregationMetrics struct {
	Views             int64            `json:"views"`
	UniqueViews       int64            `json:"unique_views"`
	Interests         int64            `json:"interests"`
	ConversionRate    float64          `json:"conversion_rate"`
	TopSources        []BreakdownEntry `json:"top_sources"`
	DeviceBreakdown   []BreakdownEntry `json:"device_breakdown"`
	LocationBreakdown []BreakdownEntry `json:"location_breakdown"`
}

type AnalyticsAggregation struct {
	ID              int64              `json:"id"`
	EntityType      EntityType         `json:"entity_type"`
	EntityID        int64              `json:"entity_id"`
	AggregationType Granularity        `json:"aggregation_type"`
	Date            time.Time          `json:"date"`
	Metrics         AggregationMetrics `json:"metrics"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// EventFact одна строка сырых событий, прочитанная агрегатором
type EventFact struct {
	Source     string
	DeviceType string
	Country    string
	IsUnique   bool
}
