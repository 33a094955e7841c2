package checker

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/NPAtlas/npatlas-curator/atlas"
	"github.com/NPAtlas/npatlas-curator/chem"
	"github.com/NPAtlas/npatlas-curator/models"
)

// ProgressSink nimmt den Fortschritt eines Laufs entgegen. Wird nach jedem
// Artikel aufgerufen, damit ein pollender Aufrufer den Stand anzeigen kann.
type ProgressSink interface {
	Update(current, total int, status string)
}

// NopProgress verwirft alle Fortschrittsmeldungen.
type NopProgress struct{}

func (NopProgress) Update(current, total int, status string) {}

// Checker validiert einen Datensatz und baut die Problem-Queue auf. Pro Lauf
// wird für jeden Artikel und jede Verbindung ein Snapshot angelegt, gegen den
// die Feld-Validatoren und die Duplikaterkennung laufen.
type Checker struct {
	DB       *gorm.DB
	Atlas    atlas.API
	Chem     chem.Normalizer
	Logger   *zap.Logger
	Progress ProgressSink

	// StrictFlatMatch meldet auch Flat-Matches ohne vollständigen
	// InChIKey-Treffer für Verbindungen ohne NPAID.
	StrictFlatMatch bool

	problems         []models.Problem
	checkedInchikeys map[string][]*models.CheckerCompound
	journals         map[string]struct{}
}

// Run prüft alle Artikel eines Datensatzes in Reihenfolge. Mit restart=false
// werden alle vorherigen Snapshots und Probleme verworfen und neu berechnet;
// mit restart=true bleiben unveränderte Snapshots samt Disposition erhalten.
func (c *Checker) Run(datasetID uint, standardize, restart bool) error {
	if c.Progress == nil {
		c.Progress = NopProgress{}
	}
	log := c.Logger.With(zap.Uint("dataset_id", datasetID))

	var dataset models.Dataset
	err := c.DB.
		Preload("Articles", func(db *gorm.DB) *gorm.DB { return db.Order("articles.id") }).
		Preload("Articles.Compounds", func(db *gorm.DB) *gorm.DB { return db.Order("compounds.id") }).
		Preload("CheckerRun").
		First(&dataset, datasetID).Error
	if err != nil {
		return fmt.Errorf("load dataset %d: %w", datasetID, err)
	}
	run := dataset.CheckerRun
	if run == nil {
		run = &models.CheckerRun{DatasetID: dataset.ID}
	}
	run.Running = true
	run.Completed = false
	if err := c.DB.Save(run).Error; err != nil {
		return err
	}

	c.problems = nil
	c.checkedInchikeys = make(map[string][]*models.CheckerCompound)

	total := len(dataset.Articles)
	log.Info("Starting checker run",
		zap.Int("articles", total), zap.Bool("restart", restart))

	for i := range dataset.Articles {
		article := &dataset.Articles[i]
		if err := c.checkArticleRecord(article, standardize, restart); err != nil {
			run.Running = false
			c.DB.Save(run)
			return fmt.Errorf("check article %d: %w", article.ID, err)
		}
		c.Progress.Update(i+1, total, fmt.Sprintf("Checked article %d of %d", i+1, total))
	}

	if err := c.persistProblems(dataset.ID); err != nil {
		return err
	}

	run.Completed = true
	run.Running = false
	if err := c.DB.Save(run).Error; err != nil {
		return err
	}
	log.Info("Checker run completed", zap.Int("problems", len(c.problems)))
	return nil
}

// checkArticleRecord verarbeitet einen einzelnen Artikel samt Verbindungen.
func (c *Checker) checkArticleRecord(article *models.Article, standardize, restart bool) error {
	log := c.Logger.With(zap.Uint("article_id", article.ID))

	retracted, err := models.RetractedArticle(c.DB, CleanDOI(article.DOI))
	if err != nil {
		return err
	}
	if retracted {
		log.Warn("Article is retracted, disabling it", zap.String("doi", article.DOI))
		article.IsNPArticle = false
		if err := c.DB.Model(article).Update("is_nparticle", false).Error; err != nil {
			return err
		}
		return nil
	}
	if !article.Completed || article.NeedsWork || !article.IsNPArticle {
		return nil
	}

	snapshot, err := c.articleSnapshot(article, restart)
	if err != nil {
		return err
	}
	if !snapshot.Resolved {
		if err := c.checkArticle(snapshot); err != nil {
			return err
		}
		if err := c.DB.Save(snapshot).Error; err != nil {
			return err
		}
	}

	for i := range article.Compounds {
		compound := &article.Compounds[i]
		snap, err := c.compoundSnapshot(compound, standardize, restart)
		if err != nil {
			return err
		}
		c.trackInchikey(article.ID, snap)
		if err := c.checkCompound(article.ID, snap); err != nil {
			return err
		}
		if err := c.resolveOrganism(article.ID, snap); err != nil {
			return err
		}
		if err := c.DB.Save(snap).Error; err != nil {
			return err
		}
	}
	return nil
}

// articleSnapshot liefert den CheckerArticle des Artikels. Außerhalb des
// Restart-Modus wird ein vorhandener Snapshot verworfen und neu erstellt.
func (c *Checker) articleSnapshot(article *models.Article, restart bool) (*models.CheckerArticle, error) {
	if restart {
		var existing models.CheckerArticle
		err := c.DB.First(&existing, article.ID).Error
		if err == nil {
			return &existing, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	} else {
		if err := c.DB.Delete(&models.CheckerArticle{}, article.ID).Error; err != nil {
			return nil, err
		}
	}

	snapshot := &models.CheckerArticle{
		ID:       article.ID,
		DOI:      article.DOI,
		PMID:     article.PMID,
		NpaArtID: article.NpaArtID,
		Journal:  article.Journal,
		Year:     article.Year,
		Volume:   strings.TrimSpace(article.Volume),
		Issue:    strings.TrimSpace(article.Issue),
		Pages:    strings.TrimSpace(article.Pages),
		Authors:  strings.TrimSpace(article.Authors),
		Title:    strings.TrimSpace(article.Title),
		Abstract: strings.TrimSpace(article.Abstract),
	}
	if err := c.DB.Create(snapshot).Error; err != nil {
		return nil, err
	}
	return snapshot, nil
}

// compoundSnapshot liefert den CheckerCompound der Verbindung. Im
// Restart-Modus wird er nur neu erstellt, wenn sich die Struktur geändert
// hat; eine Strukturänderung verwirft damit auch eine frühere Disposition.
func (c *Checker) compoundSnapshot(compound *models.Compound, standardize, restart bool) (*models.CheckerCompound, error) {
	if restart {
		var existing models.CheckerCompound
		err := c.DB.First(&existing, compound.ID).Error
		if err == nil {
			inchikey, ikErr := c.Chem.InchikeyFromSmiles(compound.Smiles)
			if ikErr != nil {
				return nil, ikErr
			}
			if inchikey == existing.InChIKey {
				return &existing, nil
			}
			c.Logger.Info("Compound structure changed, rebuilding snapshot",
				zap.Uint("compound_id", compound.ID))
		} else if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}
	if err := c.DB.Delete(&models.CheckerCompound{}, compound.ID).Error; err != nil {
		return nil, err
	}

	structure, err := c.Chem.NormalizeStructure(compound.Smiles, standardize)
	if err != nil {
		return nil, fmt.Errorf("normalize structure of compound %d: %w", compound.ID, err)
	}
	genus, species := chem.SplitSourceOrganism(compound.SourceOrganism)

	snapshot := &models.CheckerCompound{
		ID:            compound.ID,
		Name:          chem.RegularizeName(compound.Name),
		Formula:       structure.Formula,
		Smiles:        structure.Smiles,
		InChI:         structure.InChI,
		InChIKey:      structure.InChIKey,
		Molblock:      structure.Molblock,
		SourceGenus:   genus,
		SourceSpecies: species,
		NPAID:         compound.NPAID,
	}
	if err := c.DB.Create(snapshot).Error; err != nil {
		return nil, err
	}
	return snapshot, nil
}

// trackInchikey verfolgt die InChIKey-Mitgliedschaft innerhalb des Laufs.
// Teilen sich mehrere Verbindungen denselben Key, werden alle gemeldet, deren
// Disposition noch offen ist; bereits aufgelöste Snapshots bleiben stumm.
func (c *Checker) trackInchikey(articleID uint, snap *models.CheckerCompound) {
	snaps := append(c.checkedInchikeys[snap.InChIKey], snap)
	c.checkedInchikeys[snap.InChIKey] = snaps
	if len(snaps) == 2 && snaps[0].Resolve == nil {
		// Die erste Verbindung unter diesem Key nachtraeglich melden.
		first := snaps[0].ID
		c.addProblem(models.ProblemInternalDuplicate, articleID, &first)
	}
	if len(snaps) > 1 && snap.Resolve == nil {
		id := snap.ID
		c.addProblem(models.ProblemInternalDuplicate, articleID, &id)
	}
}

// checkCompound führt die Duplikat- und Retraktionserkennung aus.
func (c *Checker) checkCompound(articleID uint, snap *models.CheckerCompound) error {
	retracted, err := models.RetractedCompound(c.DB, snap.InChIKey, snap.Name)
	if err != nil {
		return err
	}
	if retracted {
		c.Logger.Warn("Compound is retracted, forcing rejection",
			zap.Uint("compound_id", snap.ID))
		reject := models.ResolveReject
		snap.Resolve = &reject
		return nil
	}
	if snap.Resolve != nil {
		return nil
	}

	if snap.NPAID == nil {
		return c.checkNewCompound(articleID, snap)
	}
	return c.checkRecuratedCompound(articleID, snap)
}

// checkNewCompound prüft eine Verbindung ohne NPAID auf Struktur- und
// Namenstreffer im Atlas. Beide Prüfungen sind unabhängig.
func (c *Checker) checkNewCompound(articleID uint, snap *models.CheckerCompound) error {
	matches, err := c.Atlas.SearchInchikey(flatInchikey(snap.InChIKey))
	if err != nil {
		return err
	}
	fullMatch := false
	for _, match := range matches {
		if match.InChIKey == snap.InChIKey {
			fullMatch = true
			break
		}
	}
	id := snap.ID
	switch {
	case fullMatch:
		c.addProblem(models.ProblemDuplicate, articleID, &id)
	case len(matches) > 0 && c.StrictFlatMatch:
		c.addProblem(models.ProblemFlatMatch, articleID, &id)
	}

	if snap.Name != chem.NotNamed {
		nameMatches, err := c.Atlas.SearchName(snap.Name)
		if err != nil {
			return err
		}
		if len(nameMatches) > 0 {
			c.addProblem(models.ProblemNameMatch, articleID, &id)
		}
	}
	return nil
}

// checkRecuratedCompound prüft eine Verbindung mit NPAID: hat sich die
// Struktur nicht geändert, wird direkt auf UPDATE gestellt.
func (c *Checker) checkRecuratedCompound(articleID uint, snap *models.CheckerCompound) error {
	existing, err := c.Atlas.GetCompound(*snap.NPAID)
	if err != nil {
		return err
	}
	if existing == nil {
		c.Logger.Warn("NPAID not found in the Atlas, treating compound as new",
			zap.Uint("compound_id", snap.ID), zap.Int("npaid", *snap.NPAID))
		return c.checkNewCompound(articleID, snap)
	}
	if existing.InChIKey == snap.InChIKey {
		update := models.ResolveUpdate
		snap.Resolve = &update
		return nil
	}

	matches, err := c.Atlas.SearchInchikey(flatInchikey(snap.InChIKey))
	if err != nil {
		return err
	}
	id := snap.ID
	for _, match := range matches {
		if match.InChIKey == snap.InChIKey && match.NPAID != *snap.NPAID {
			c.addProblem(models.ProblemDuplicate, articleID, &id)
			return nil
		}
	}
	c.addProblem(models.ProblemFlatMatch, articleID, &id)
	return nil
}

// resolveOrganism löst den Gattungsnamen gegen die Atlas-Taxonomie auf.
func (c *Checker) resolveOrganism(articleID uint, snap *models.CheckerCompound) error {
	if snap.AtlasTaxonID != nil || snap.SourceGenus == "" {
		return nil
	}
	matches, err := c.Atlas.SearchTaxa(snap.SourceGenus)
	if err != nil {
		return err
	}
	id := snap.ID
	switch len(matches) {
	case 1:
		taxonID := matches[0].ID
		snap.AtlasTaxonID = &taxonID
	case 0:
		taxon, err := models.SearchTaxonAlternatives(c.DB, snap.SourceGenus)
		if err != nil {
			return err
		}
		if taxon != nil {
			snap.AtlasTaxonID = &taxon.AtlasTaxonID
		} else {
			c.addProblem(models.ProblemGenus, articleID, &id)
		}
	default:
		c.addProblem(models.ProblemMultipleTaxa, articleID, &id)
	}
	return nil
}

func (c *Checker) addProblem(kind string, articleID uint, compoundID *uint) {
	c.problems = append(c.problems, models.Problem{
		ArticleID:  articleID,
		CompoundID: compoundID,
		Problem:    kind,
	})
}

// persistProblems ersetzt die Problemliste des Datensatzes durch die in
// diesem Lauf gesammelten Funde.
func (c *Checker) persistProblems(datasetID uint) error {
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("dataset_id = ?", datasetID).Delete(&models.Problem{}).Error; err != nil {
			return err
		}
		if len(c.problems) == 0 {
			return nil
		}
		for i := range c.problems {
			c.problems[i].DatasetID = datasetID
		}
		return tx.Create(&c.problems).Error
	})
}

// atlasJournals liefert die memoisierte Journalliste des Atlas als Menge.
func (c *Checker) atlasJournals() (map[string]struct{}, error) {
	if c.journals != nil {
		return c.journals, nil
	}
	titles, err := c.Atlas.GetJournals()
	if err != nil {
		return nil, err
	}
	c.journals = make(map[string]struct{}, len(titles))
	for _, title := range titles {
		c.journals[title] = struct{}{}
	}
	return c.journals, nil
}

// flatInchikey liefert das Connectivity-Segment eines InChIKeys.
func flatInchikey(inchikey string) string {
	if idx := strings.Index(inchikey, "-"); idx >= 0 {
		return inchikey[:idx]
	}
	return inchikey
}
