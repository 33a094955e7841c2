package checker

import (
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/NPAtlas/npatlas-curator/atlas"
	"github.com/NPAtlas/npatlas-curator/models"
)

// ErrInvalidResolution meldet eine Auflösung, die zum Problemtyp nicht passt
// oder deren Wert die Feldregeln verletzt.
var ErrInvalidResolution = errors.New("invalid resolution for problem")

// Resolution ist die menschliche Entscheidung zu einem Problem. Je nach
// Problemtyp ist genau eine Variante belegt; Force und Reject sind globale
// Ausweichpfade, die für jeden Typ gelten.
type Resolution struct {
	// Force markiert das Problem ohne Prüfung als gelöst.
	Force bool `json:"force"`
	// Reject lehnt den ganzen Artikel ab.
	Reject bool `json:"reject"`

	// Value für einfache Feldtypen (doi, pmid, year, ...).
	Value string `json:"value"`

	// JournalID bindet an ein bestehendes lokales Journal, NewJournal legt
	// eines an. Für missing_journal wird zusätzlich im Atlas registriert.
	JournalID  *uint      `json:"journal_id"`
	NewJournal *JournalIn `json:"new_journal"`

	// TaxonID bindet an ein lokales Taxon, AtlasTaxonID direkt an ein
	// Atlas-Taxon, NewTaxon legt ein Taxon lokal und im Atlas an.
	TaxonID      *uint    `json:"taxon_id"`
	AtlasTaxonID *int     `json:"atlas_taxon_id"`
	NewTaxon     *TaxonIn `json:"new_taxon"`

	// Disposition für Duplikat-Probleme. REPLACE und SYNONYM brauchen eine
	// NPAID; NeedsWork stellt den Artikel zurück.
	Disposition *models.Resolve `json:"disposition"`
	NPAID       *int            `json:"npaid"`
	NeedsWork   bool            `json:"needs_work"`
}

// JournalIn beschreibt ein neu zu registrierendes Journal.
type JournalIn struct {
	Title  string `json:"title"`
	Abbrev string `json:"abbrev"`
}

// TaxonIn beschreibt ein neu anzulegendes Taxon.
type TaxonIn struct {
	Name       string `json:"name"`
	Rank       string `json:"rank"`
	ParentID   int    `json:"parent_id"`
	TaxonDB    string `json:"taxon_db"`
	ExternalID string `json:"external_id"`
}

// Resolver wendet Auflösungen auf Probleme an und mutiert dabei die
// Snapshots und die lokalen Autoritätstabellen.
type Resolver struct {
	DB     *gorm.DB
	Atlas  atlas.API
	Logger *zap.Logger
}

// Resolve löst ein Problem. Der Übergang nach resolved=true ist endgültig;
// erst ein neuer Checker-Lauf setzt die Problemliste zurück.
func (r *Resolver) Resolve(problemID uint, res Resolution) error {
	var problem models.Problem
	if err := r.DB.First(&problem, problemID).Error; err != nil {
		return fmt.Errorf("load problem %d: %w", problemID, err)
	}
	if problem.Resolved {
		return fmt.Errorf("problem %d is already resolved", problemID)
	}
	log := r.Logger.With(
		zap.Uint("problem_id", problem.ID),
		zap.String("problem", problem.Problem),
	)

	return r.DB.Transaction(func(tx *gorm.DB) error {
		switch {
		case res.Reject:
			log.Info("Rejecting article")
			err := tx.Model(&models.Article{}).Where("id = ?", problem.ArticleID).
				Update("is_nparticle", false).Error
			if err != nil {
				return err
			}
		case res.Force:
			log.Info("Forcing resolution")
			err := tx.Model(&models.CheckerArticle{}).Where("id = ?", problem.ArticleID).
				Update("resolved", true).Error
			if err != nil {
				return err
			}
		default:
			if err := r.apply(tx, &problem, res); err != nil {
				return err
			}
		}
		return tx.Model(&problem).Update("resolved", true).Error
	})
}

func (r *Resolver) apply(tx *gorm.DB, problem *models.Problem, res Resolution) error {
	switch problem.Problem {
	case models.ProblemDOI, models.ProblemMissingDOI, models.ProblemPMID,
		models.ProblemYear, models.ProblemVolume, models.ProblemIssue,
		models.ProblemAuthors, models.ProblemTitle, models.ProblemPages,
		models.ProblemAbstract:
		return r.applyField(tx, problem, res.Value)
	case models.ProblemJournal, models.ProblemMissingJournal:
		return r.applyJournal(tx, problem, res)
	case models.ProblemGenus, models.ProblemMultipleTaxa:
		return r.applyTaxon(tx, problem, res)
	case models.ProblemDuplicate, models.ProblemFlatMatch,
		models.ProblemNameMatch, models.ProblemInternalDuplicate:
		return r.applyDisposition(tx, problem, res)
	default:
		return fmt.Errorf("%w: unknown problem kind %q", ErrInvalidResolution, problem.Problem)
	}
}

// applyField überschreibt ein einzelnes bibliografisches Feld des Snapshots
// mit dem vom Kurator gelieferten Wert.
func (r *Resolver) applyField(tx *gorm.DB, problem *models.Problem, value string) error {
	column, parsed, err := validateFieldValue(problem.Problem, value)
	if err != nil {
		return err
	}
	return tx.Model(&models.CheckerArticle{}).Where("id = ?", problem.ArticleID).
		Update(column, parsed).Error
}

// validateFieldValue prüft einen Feldwert und liefert Spaltenname und den zu
// persistierenden Wert.
func validateFieldValue(kind, value string) (string, any, error) {
	switch kind {
	case models.ProblemDOI, models.ProblemMissingDOI:
		value = CleanDOI(value)
		if !doiPattern.MatchString(value) {
			return "", nil, fmt.Errorf("%w: malformed doi %q", ErrInvalidResolution, value)
		}
		return "doi", value, nil
	case models.ProblemPMID:
		pmid, err := strconv.Atoi(value)
		if err != nil {
			return "", nil, fmt.Errorf("%w: pmid must be numeric", ErrInvalidResolution)
		}
		return "pmid", pmid, nil
	case models.ProblemYear:
		year, err := strconv.Atoi(value)
		if err != nil || year <= 1800 || year >= 3000 {
			return "", nil, fmt.Errorf("%w: implausible year %q", ErrInvalidResolution, value)
		}
		return "year", year, nil
	case models.ProblemVolume, models.ProblemIssue:
		if len(value) > 6 {
			return "", nil, fmt.Errorf("%w: %s longer than 6 characters", ErrInvalidResolution, kind)
		}
		return kind, value, nil
	case models.ProblemPages:
		return "pages", normalizeDashes(value), nil
	case models.ProblemAuthors, models.ProblemTitle:
		if len(value) < 10 {
			return "", nil, fmt.Errorf("%w: %s too short", ErrInvalidResolution, kind)
		}
		return kind, value, nil
	case models.ProblemAbstract:
		if value != "" && len(value) < 10 {
			return "", nil, fmt.Errorf("%w: abstract too short", ErrInvalidResolution)
		}
		return "abstract", value, nil
	}
	return "", nil, fmt.Errorf("%w: %q is not a field problem", ErrInvalidResolution, kind)
}

// applyJournal bindet den Artikel an ein bestehendes Journal oder registriert
// ein neues. Der kuratierte Titel wird als alternative Schreibweise vermerkt.
func (r *Resolver) applyJournal(tx *gorm.DB, problem *models.Problem, res Resolution) error {
	var article models.CheckerArticle
	if err := tx.First(&article, problem.ArticleID).Error; err != nil {
		return err
	}

	var journal models.Journal
	switch {
	case res.JournalID != nil:
		if err := tx.First(&journal, *res.JournalID).Error; err != nil {
			return err
		}
		alt := models.AltJournal{
			JournalID:  journal.ID,
			AltJournal: models.NormalizeJournalTitle(article.Journal),
		}
		if err := tx.Create(&alt).Error; err != nil {
			return err
		}
	case res.NewJournal != nil:
		journal = models.Journal{Journal: res.NewJournal.Title, Abbrev: res.NewJournal.Abbrev}
		if err := tx.Create(&journal).Error; err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: journal resolution needs a binding or a new journal", ErrInvalidResolution)
	}

	if problem.Problem == models.ProblemMissingJournal {
		if err := r.Atlas.Authenticate(); err != nil {
			return err
		}
		if err := r.Atlas.AddJournal(journal.Journal); err != nil {
			return fmt.Errorf("register journal in atlas: %w", err)
		}
		r.Logger.Info("Registered journal in the Atlas", zap.String("journal", journal.Journal))
	}

	return tx.Model(&article).
		Updates(map[string]any{"journal": journal.Journal, "journal_abbrev": journal.Abbrev}).Error
}

// applyTaxon bindet die Verbindung an ein Taxon oder legt eines an, lokal und
// im Atlas.
func (r *Resolver) applyTaxon(tx *gorm.DB, problem *models.Problem, res Resolution) error {
	if problem.CompoundID == nil {
		return fmt.Errorf("%w: taxon problem without compound", ErrInvalidResolution)
	}
	var compound models.CheckerCompound
	if err := tx.First(&compound, *problem.CompoundID).Error; err != nil {
		return err
	}

	var atlasTaxonID int
	switch {
	case res.AtlasTaxonID != nil:
		atlasTaxonID = *res.AtlasTaxonID
	case res.TaxonID != nil:
		var taxon models.Taxon
		if err := tx.First(&taxon, *res.TaxonID).Error; err != nil {
			return err
		}
		taxon.AddAlternative(compound.SourceGenus)
		if err := tx.Save(&taxon).Error; err != nil {
			return err
		}
		atlasTaxonID = taxon.AtlasTaxonID
	case res.NewTaxon != nil:
		if err := r.Atlas.Authenticate(); err != nil {
			return err
		}
		id, err := r.Atlas.InsertTaxon(atlas.TaxonIn{
			Name:       res.NewTaxon.Name,
			Rank:       res.NewTaxon.Rank,
			ParentID:   res.NewTaxon.ParentID,
			TaxonDB:    res.NewTaxon.TaxonDB,
			ExternalID: res.NewTaxon.ExternalID,
		})
		if err != nil {
			return fmt.Errorf("insert taxon in atlas: %w", err)
		}
		taxon := models.Taxon{Taxon: res.NewTaxon.Name, AtlasTaxonID: id}
		taxon.AddAlternative(compound.SourceGenus)
		if err := tx.Create(&taxon).Error; err != nil {
			return err
		}
		r.Logger.Info("Created taxon", zap.String("taxon", taxon.Taxon), zap.Int("atlas_taxon_id", id))
		atlasTaxonID = id
	default:
		return fmt.Errorf("%w: taxon resolution needs a binding or a new taxon", ErrInvalidResolution)
	}

	return tx.Model(&compound).Update("atlas_taxon_id", atlasTaxonID).Error
}

// applyDisposition setzt die Disposition einer Verbindung. NeedsWork stellt
// stattdessen den ganzen Artikel zurück.
func (r *Resolver) applyDisposition(tx *gorm.DB, problem *models.Problem, res Resolution) error {
	if res.NeedsWork {
		return tx.Model(&models.Article{}).Where("id = ?", problem.ArticleID).
			Update("needs_work", true).Error
	}
	if problem.CompoundID == nil {
		return fmt.Errorf("%w: compound problem without compound", ErrInvalidResolution)
	}
	if res.Disposition == nil {
		return fmt.Errorf("%w: disposition required", ErrInvalidResolution)
	}
	disposition := *res.Disposition

	updates := map[string]any{"resolve": disposition}
	switch disposition {
	case models.ResolveNew, models.ResolveKeep, models.ResolveUpdate:
	case models.ResolveReplace, models.ResolveSynonym:
		if res.NPAID == nil {
			return fmt.Errorf("%w: %s requires an npaid", ErrInvalidResolution, disposition)
		}
		updates["npaid"] = *res.NPAID
	case models.ResolveReject:
		err := tx.Model(&models.Article{}).Where("id = ?", problem.ArticleID).
			Update("is_nparticle", false).Error
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown disposition %d", ErrInvalidResolution, disposition)
	}
	return tx.Model(&models.CheckerCompound{}).Where("id = ?", *problem.CompoundID).
		Updates(updates).Error
}
