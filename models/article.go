package models

import (
	"time"
)

// Article repräsentiert einen kuratierten Literatur-Eintrag eines Datasets.
type Article struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DatasetID uint `json:"dataset_id" gorm:"index;not null"`

	DOI      string `json:"doi,omitempty" gorm:"column:doi;index"`
	PMID     *int   `json:"pmid,omitempty" gorm:"column:pmid"`
	Journal  string `json:"journal,omitempty"`
	Year     int    `json:"year,omitempty"`
	Volume   string `json:"volume,omitempty"`
	Issue    string `json:"issue,omitempty"`
	Pages    string `json:"pages,omitempty"`
	Title    string `json:"title,omitempty" gorm:"type:text"`
	Authors  string `json:"authors,omitempty" gorm:"type:text"`
	Abstract string `json:"abstract,omitempty" gorm:"type:text"`
	Notes    string `json:"notes,omitempty" gorm:"type:text"`

	// Atlas reference id when the article is already known there.
	NpaArtID *int `json:"npa_artid,omitempty" gorm:"column:npa_artid"`

	Completed bool `json:"completed" gorm:"default:false"`
	NeedsWork bool `json:"needs_work" gorm:"default:false"`
	// false means the article was rejected and is excluded downstream.
	IsNPArticle bool `json:"is_nparticle" gorm:"column:is_nparticle;default:true"`

	Compounds      []Compound      `json:"compounds,omitempty" gorm:"foreignKey:ArticleID"`
	CheckerArticle *CheckerArticle `json:"checker_article,omitempty" gorm:"foreignKey:ID;references:ID"`
}

// TableName gibt explizit den Tabellennamen an.
func (Article) TableName() string {
	return "articles"
}

// Compound repräsentiert eine in einem Artikel beschriebene Verbindung.
type Compound struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ArticleID uint `json:"article_id" gorm:"index;not null"`

	Name           string `json:"name" gorm:"not null"`
	Smiles         string `json:"smiles" gorm:"type:text;not null"`
	SourceOrganism string `json:"source_organism,omitempty"`

	// Link to an existing Atlas compound when recurating.
	NPAID *int `json:"npaid,omitempty" gorm:"column:npaid"`

	CheckerCompound *CheckerCompound `json:"checker_compound,omitempty" gorm:"foreignKey:ID;references:ID"`
}

// TableName gibt explizit den Tabellennamen an.
func (Compound) TableName() string {
	return "compounds"
}
