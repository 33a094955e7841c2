package models

import (
	"time"

	"gorm.io/datatypes"
)

// Dataset repräsentiert einen Kurations-Batch aus Artikeln.
type Dataset struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CuratorID    *uint  `json:"curator_id,omitempty" gorm:"index"`
	Instructions string `json:"instructions,omitempty" gorm:"type:text"`
	Completed    bool   `json:"completed" gorm:"default:false"`
	// Training datasets are practice material and never synced to the Atlas.
	Training bool `json:"training" gorm:"default:false"`

	Articles   []Article   `json:"articles,omitempty" gorm:"foreignKey:DatasetID"`
	CheckerRun *CheckerRun `json:"checker_run,omitempty" gorm:"foreignKey:DatasetID"`
}

// TableName gibt explizit den Tabellennamen an.
func (Dataset) TableName() string {
	return "datasets"
}

// CheckerRun verfolgt den Pipeline-Zustand eines Datasets (1:1).
type CheckerRun struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DatasetID uint   `json:"dataset_id" gorm:"uniqueIndex;not null"`
	TaskID    string `json:"task_id,omitempty" gorm:"index"`

	Standardized bool `json:"standardized" gorm:"default:false"`
	Running      bool `json:"running" gorm:"default:false"`
	Completed    bool `json:"completed" gorm:"default:false"`
	Inserted     bool `json:"inserted" gorm:"default:false"`

	// Serialized ApiError list from the last insertion attempt.
	Errors datatypes.JSON `json:"errors,omitempty" gorm:"type:jsonb"`
}

// TableName gibt explizit den Tabellennamen an.
func (CheckerRun) TableName() string {
	return "checker_runs"
}
