package atlas

// CompoundMatch ist ein Suchtreffer aus der Atlas-Compound-Suche.
type CompoundMatch struct {
	NPAID        int    `json:"npaid"`
	OriginalName string `json:"original_name"`
	InChIKey     string `json:"inchikey"`
}

// Compound ist der vollständige Atlas-Datensatz einer Verbindung.
type Compound struct {
	ID             int    `json:"id"`
	NPAID          int    `json:"npaid"`
	Name           string `json:"name"`
	OriginalName   string `json:"original_name"`
	Smiles         string `json:"smiles"`
	InChIKey       string `json:"inchikey"`
	OriginOrganism struct {
		Taxon struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"taxon"`
		Species string `json:"species"`
	} `json:"origin_organism"`
}

// Reference ist der Atlas-Datensatz eines Literatur-Eintrags.
type Reference struct {
	ID       int    `json:"id"`
	DOI      string `json:"doi"`
	PMID     *int   `json:"pmid"`
	Authors  string `json:"authors"`
	Title    string `json:"title"`
	Journal  string `json:"journal"`
	Year     int    `json:"year"`
	Volume   string `json:"volume"`
	Issue    string `json:"issue"`
	Pages    string `json:"pages"`
	Abstract string `json:"abstract"`
}

// ReferenceIn ist der Insert-Payload für eine neue Referenz.
// MUST MATCH NPATLAS_API SCHEMAS.
type ReferenceIn struct {
	DOI      string `json:"doi"`
	PMID     *int   `json:"pmid,omitempty"`
	Authors  string `json:"authors"`
	Title    string `json:"title"`
	Journal  string `json:"journal"`
	Year     int    `json:"year,omitempty"`
	Volume   string `json:"volume,omitempty"`
	Issue    string `json:"issue,omitempty"`
	Pages    string `json:"pages,omitempty"`
	Abstract string `json:"abstract,omitempty"`
}

// ReferenceUpdate ist der Update-Payload für eine bestehende Referenz.
type ReferenceUpdate struct {
	PMID    *int   `json:"pmid,omitempty"`
	Authors string `json:"authors"`
	Title   string `json:"title"`
	Journal string `json:"journal"`
	Year    int    `json:"year,omitempty"`
	Volume  string `json:"volume,omitempty"`
	Issue   string `json:"issue,omitempty"`
	Pages   string `json:"pages,omitempty"`
}

// IsolationIn beschreibt die Herkunft (Origin) einer Verbindung.
type IsolationIn struct {
	OriginDOI     string `json:"origin_doi"`
	OriginTaxonID int    `json:"origin_taxon_id"`
	OriginSpecies string `json:"origin_species"`
}

// CompoundIn ist der Insert-Payload für eine neue Verbindung.
type CompoundIn struct {
	IsolationIn
	Smiles string `json:"smiles"`
	Name   string `json:"name"`
}

// TaxonMatch ist ein Treffer aus der Taxon-Suche.
type TaxonMatch struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// RankTaxon ist ein Taxon-Eintrag einer Rang-Auflistung.
type RankTaxon struct {
	ID           int    `json:"id"`
	OriginalName string `json:"original_name"`
}

// TaxonIn ist der Insert-Payload für ein neues Taxon.
type TaxonIn struct {
	Name       string `json:"name"`
	ParentID   int    `json:"parent_id"`
	TaxonDB    string `json:"taxon_db"`
	ExternalID string `json:"external_id"`
	Rank       string `json:"rank"`
}
