package database

import (
	"time"

	"github.com/jackc/pgtype"
)

// Measurand represents a measured parameter in the reference table
type Measurand struct {
	MeasurandsID int     `gorm:"primaryKey;column:measurands_id" json:"id"`
	Measurand    string  `gorm:"column:measurand;not null" json:"name"`
	Units        string  `gorm:"column:units;not null" json:"preferredUnit"`
	Display      *string `gorm:"column:display" json:"displayName,omitempty"`
	Description  *string `gorm:"column:description" json:"description,omitempty"`
}

// TableName specifies the table name for Measurand
func (Measurand) TableName() string {
	return "measurands"
}

// Source represents an upstream data provider
type Source struct {
	SourcesID  int          `gorm:"primaryKey;autoIncrement;column:sources_id"`
	SourceName string       `gorm:"column:source_name;not null;unique"`
	SourceID   string       `gorm:"column:source_id"`
	Data       pgtype.JSONB `gorm:"column:data;type:jsonb"`
}

// TableName specifies the table name for Source
func (Source) TableName() string {
	return "sources"
}

// Fetchlog tracks one ingest object from discovery through load
type Fetchlog struct {
	FetchlogsID           int        `gorm:"primaryKey;autoIncrement;column:fetchlogs_id"`
	Key                   string     `gorm:"column:key;not null;unique"`
	LastModified          *time.Time `gorm:"column:last_modified"`
	InitDatetime          time.Time  `gorm:"column:init_datetime;default:CURRENT_TIMESTAMP"`
	LoadedDatetime        *time.Time `gorm:"column:loaded_datetime"`
	Completed             *time.Time `gorm:"column:completed_datetime"`
	FirstRecordedDatetime *time.Time `gorm:"column:first_recorded_datetime"`
	LastRecordedDatetime  *time.Time `gorm:"column:last_recorded_datetime"`
	RecordsLoaded         int        `gorm:"column:records_loaded"`
	LastMessage           *string    `gorm:"column:last_message"`
}

// TableName specifies the table name for Fetchlog
func (Fetchlog) TableName() string {
	return "fetchlogs"
}

// GetParameters returns the measurand reference table, ordered by the
// given column.
func (c *Client) GetParameters(orderBy, sort string) ([]Measurand, error) {
	var measurands []Measurand
	if err := c.DB.Order(orderBy + " " + sort).Find(&measurands).Error; err != nil {
		return nil, err
	}
	return measurands, nil
}

// GetMeasurandByName looks up a single measurand by its short name
func (c *Client) GetMeasurandByName(name string) (*Measurand, error) {
	var m Measurand
	if err := c.DB.Where("measurand = ?", name).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// LastCompletedFetch returns the most recently completed ingest object,
// or nil if nothing has been ingested yet.
func (c *Client) LastCompletedFetch() (*Fetchlog, error) {
	var fl Fetchlog
	err := c.DB.Where("completed_datetime IS NOT NULL").
		Order("completed_datetime DESC").
		Limit(1).
		Find(&fl).Error
	if err != nil {
		return nil, err
	}
	if fl.FetchlogsID == 0 {
		return nil, nil
	}
	return &fl, nil
}
