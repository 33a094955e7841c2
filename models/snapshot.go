package models

import "time"

// Resolve dictates how a checker compound is handled during insertion.
// The numeric values are persisted and must stay stable.
type Resolve int

const (
	ResolveNew     Resolve = 1
	ResolveReplace Resolve = 2
	ResolveKeep    Resolve = 3
	ResolveUpdate  Resolve = 4
	ResolveReject  Resolve = 5
	ResolveSynonym Resolve = 6
)

func (r Resolve) String() string {
	switch r {
	case ResolveNew:
		return "NEW"
	case ResolveReplace:
		return "REPLACE"
	case ResolveKeep:
		return "KEEP"
	case ResolveUpdate:
		return "UPDATE"
	case ResolveReject:
		return "REJECT"
	case ResolveSynonym:
		return "SYNONYM"
	}
	return "UNKNOWN"
}

// CheckerArticle ist der unveränderliche Snapshot eines Artikels zum
// Prüfzeitpunkt. Die ID ist identisch mit der Artikel-ID (shared primary key),
// damit Restart/Neuaufbau trivial bleiben.
type CheckerArticle struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DOI           string `json:"doi,omitempty" gorm:"column:doi"`
	PMID          *int   `json:"pmid,omitempty" gorm:"column:pmid"`
	NpaArtID      *int   `json:"npa_artid,omitempty" gorm:"column:npa_artid"`
	Journal       string `json:"journal,omitempty"`
	JournalAbbrev string `json:"journal_abbrev,omitempty"`
	Year          int    `json:"year,omitempty"`
	Volume        string `json:"volume,omitempty"`
	Issue         string `json:"issue,omitempty"`
	Pages         string `json:"pages,omitempty"`
	Authors       string `json:"authors,omitempty" gorm:"type:text"`
	Title         string `json:"title,omitempty" gorm:"type:text"`
	Abstract      string `json:"abstract,omitempty" gorm:"type:text"`

	Resolved bool `json:"resolved" gorm:"default:false"`
}

// TableName gibt explizit den Tabellennamen an.
func (CheckerArticle) TableName() string {
	return "checker_articles"
}

// CheckerCompound ist der abgeleitete Snapshot einer Verbindung: normalisierter
// Name, kanonische Struktur und aufgeteilter Quellorganismus. Shared primary
// key mit Compound.
type CheckerCompound struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name     string `json:"name"`
	Formula  string `json:"formula,omitempty"`
	Smiles   string `json:"smiles" gorm:"type:text"`
	InChI    string `json:"inchi,omitempty" gorm:"column:inchi;type:text"`
	InChIKey string `json:"inchikey,omitempty" gorm:"column:inchikey;index"`
	Molblock string `json:"molblock,omitempty" gorm:"type:text"`

	SourceGenus   string `json:"source_genus,omitempty"`
	SourceSpecies string `json:"source_species,omitempty"`
	AtlasTaxonID  *int   `json:"atlas_taxon_id,omitempty"`

	NPAID *int `json:"npaid,omitempty" gorm:"column:npaid"`

	// Disposition chosen during review; nil until resolved.
	Resolve *Resolve `json:"resolve,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (CheckerCompound) TableName() string {
	return "checker_compounds"
}
