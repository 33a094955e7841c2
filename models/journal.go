package models

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Journal ist die lokale Autoritätstabelle für Zeitschriftentitel.
type Journal struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Journal string `json:"journal" gorm:"uniqueIndex;not null"`
	Abbrev  string `json:"abbrev,omitempty"`

	Alternatives []AltJournal `json:"alternatives,omitempty" gorm:"foreignKey:JournalID"`
}

// TableName gibt explizit den Tabellennamen an.
func (Journal) TableName() string {
	return "journals"
}

// AltJournal registriert eine alternative Schreibweise eines Journals.
// Gespeichert wird immer die normalisierte Form (lowercase, ohne Punkte).
type AltJournal struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	AltJournal string `json:"altjournal" gorm:"column:altjournal;index;not null"`
	JournalID  uint   `json:"journal_id" gorm:"index;not null"`
}

// TableName gibt explizit den Tabellennamen an.
func (AltJournal) TableName() string {
	return "alt_journals"
}

// NormalizeJournalTitle bringt einen Journal-String in Vergleichsform.
func NormalizeJournalTitle(title string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(title), ".", ""))
}

// CheckJournalMatch resolves a curated journal string against the authority
// table: exact title first, then normalized title/abbreviation, then any
// registered alternative spelling. Returns nil without error when nothing
// matches.
func CheckJournalMatch(db *gorm.DB, title string) (*Journal, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}

	var journal Journal
	err := db.Where("journal = ?", title).First(&journal).Error
	if err == nil {
		return &journal, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	norm := NormalizeJournalTitle(title)
	err = db.Where(
		"REPLACE(LOWER(journal), '.', '') = ? OR REPLACE(LOWER(abbrev), '.', '') = ?",
		norm, norm,
	).First(&journal).Error
	if err == nil {
		return &journal, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var alt AltJournal
	err = db.Where("altjournal = ?", norm).First(&alt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := db.First(&journal, alt.JournalID).Error; err != nil {
		return nil, err
	}
	return &journal, nil
}
