package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Taxon ist die lokale Autoritätstabelle für Quellorganismen mit Verweis auf
// die Atlas-Taxon-ID. Alternative Schreibweisen werden als "@name@"-Liste
// gesammelt.
type Taxon struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Taxon        string `json:"taxon" gorm:"index;not null"`
	AtlasTaxonID int    `json:"atlas_taxon_id" gorm:"uniqueIndex;not null"`
	Alternatives string `json:"alternatives,omitempty" gorm:"type:text"`
}

// TableName gibt explizit den Tabellennamen an.
func (Taxon) TableName() string {
	return "taxa"
}

// AddAlternative registriert eine weitere Schreibweise für dieses Taxon.
func (t *Taxon) AddAlternative(name string) {
	t.Alternatives += fmt.Sprintf("@%s@", name)
}

// SearchTaxonAlternatives sucht ein Taxon über seine registrierten
// Alternativ-Schreibweisen. Gibt nil ohne Fehler zurück, wenn keine passt.
func SearchTaxonAlternatives(db *gorm.DB, genus string) (*Taxon, error) {
	if genus == "" {
		return nil, nil
	}
	var taxon Taxon
	err := db.Where("alternatives LIKE ?", "%@"+genus+"@%").First(&taxon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &taxon, nil
}
