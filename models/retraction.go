package models

import (
	"time"

	"gorm.io/gorm"
)

// Retraction ist die Referenzliste zurückgezogener Artikel und Verbindungen.
// Reine Lookup-Tabelle, wird nie von der Pipeline verändert.
type Retraction struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ArticleDOI       string `json:"article_doi,omitempty" gorm:"column:article_doi;index"`
	CompoundInchikey string `json:"compound_inchikey,omitempty" gorm:"column:compound_inchikey;index"`
	CompoundName     string `json:"compound_name,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (Retraction) TableName() string {
	return "retractions"
}

// RetractedArticle meldet, ob ein Artikel-DOI zurückgezogen wurde.
func RetractedArticle(db *gorm.DB, doi string) (bool, error) {
	if doi == "" {
		return false, nil
	}
	var count int64
	err := db.Model(&Retraction{}).Where("article_doi = ?", doi).Count(&count).Error
	return count > 0, err
}

// RetractedCompound meldet, ob eine Verbindung per InChIKey oder Name
// zurückgezogen wurde.
func RetractedCompound(db *gorm.DB, inchikey, name string) (bool, error) {
	var count int64
	if inchikey != "" {
		if err := db.Model(&Retraction{}).Where("compound_inchikey = ?", inchikey).Count(&count).Error; err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	if name == "" {
		return false, nil
	}
	err := db.Model(&Retraction{}).Where("compound_name = ?", name).Count(&count).Error
	return count > 0, err
}
