package models

import "time"

// Valid problem kinds emitted by the checker.
const (
	ProblemDOI               = "doi"                // DOI formatting
	ProblemMissingDOI        = "missing_doi"        // No DOI present
	ProblemPMID              = "pmid"               // PMID formatting
	ProblemJournal           = "journal"            // Journal not in authority table
	ProblemMissingJournal    = "missing_journal"    // Journal not in Atlas
	ProblemYear              = "year"               // Year formatting
	ProblemVolume            = "volume"             // Volume formatting
	ProblemIssue             = "issue"              // Issue formatting
	ProblemAuthors           = "authors"            // Author string formatting
	ProblemTitle             = "title"              // Title formatting
	ProblemPages             = "pages"              // Page formatting
	ProblemAbstract          = "abstract"           // Abstract formatting
	ProblemDuplicate         = "duplicate"          // Full InChIKey match with Atlas
	ProblemFlatMatch         = "flat_match"         // Connectivity-layer match with Atlas
	ProblemGenus             = "genus"              // Genus not found in Atlas
	ProblemMultipleTaxa      = "multiple_taxa"      // Ambiguous genus in Atlas
	ProblemNameMatch         = "name_match"         // Name matches an Atlas compound
	ProblemInternalDuplicate = "internal_duplicate" // InChIKey duplicated within the dataset
)

var problemKinds = map[string]bool{
	ProblemDOI:               true,
	ProblemMissingDOI:        true,
	ProblemPMID:              true,
	ProblemJournal:           true,
	ProblemMissingJournal:    true,
	ProblemYear:              true,
	ProblemVolume:            true,
	ProblemIssue:             true,
	ProblemAuthors:           true,
	ProblemTitle:             true,
	ProblemPages:             true,
	ProblemAbstract:          true,
	ProblemDuplicate:         true,
	ProblemFlatMatch:         true,
	ProblemGenus:             true,
	ProblemMultipleTaxa:      true,
	ProblemNameMatch:         true,
	ProblemInternalDuplicate: true,
}

// ValidProblemKind meldet, ob ein Problem-Typ zum geschlossenen Set gehört.
func ValidProblemKind(kind string) bool {
	return problemKinds[kind]
}

// Problem ist ein vom Checker gemeldeter Befund, der eine menschliche
// Auflösung vor der Insertion verlangt.
type Problem struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DatasetID  uint   `json:"dataset_id" gorm:"index;not null"`
	ArticleID  uint   `json:"article_id" gorm:"index;not null"`
	CompoundID *uint  `json:"compound_id,omitempty"`
	Problem    string `json:"problem" gorm:"not null"`
	Resolved   bool   `json:"resolved" gorm:"default:false"`
}

// TableName gibt explizit den Tabellennamen an.
func (Problem) TableName() string {
	return "problems"
}
