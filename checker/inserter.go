package checker

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/NPAtlas/npatlas-curator/atlas"
	"github.com/NPAtlas/npatlas-curator/models"
)

var (
	// ErrDatasetNotReady meldet eine Verletzung des Sanity-Gates vor dem
	// Insert.
	ErrDatasetNotReady = errors.New("dataset is not ready for insertion")
	// ErrResolutionBypassed meldet eine Verbindung, die den
	// Auflösungsworkflow umgangen hat. Bricht den gesamten Lauf ab.
	ErrResolutionBypassed = errors.New("compound bypassed the resolution workflow")
)

// ApiError protokolliert eine vom Atlas abgelehnte API-Anfrage mit genug
// Kontext, um sie später zu prüfen oder zu wiederholen.
type ApiError struct {
	Action       string `json:"action"`
	OriginalData any    `json:"original_data"`
	NewData      any    `json:"new_data"`
	ApiResponse  string `json:"api_response"`
}

// Inserter synchronisiert einen vollständig aufgelösten Datensatz in den
// Atlas. Fehler einzelner API-Aufrufe werden gesammelt statt den Lauf
// abzubrechen; nur Verletzungen des Auflösungs-Kontrakts sind fatal.
type Inserter struct {
	DB       *gorm.DB
	Atlas    atlas.API
	Logger   *zap.Logger
	Progress ProgressSink

	journals map[string]struct{}
	errors   []ApiError
}

// Run fügt den Datensatz in den Atlas ein und liefert die gesammelten
// API-Fehler. Nach einem vollständigen Durchlauf wird der Lauf immer als
// inserted markiert, auch wenn Fehler protokolliert wurden.
func (ins *Inserter) Run(datasetID uint) ([]ApiError, error) {
	if ins.Progress == nil {
		ins.Progress = NopProgress{}
	}
	log := ins.Logger.With(zap.Uint("dataset_id", datasetID))

	var dataset models.Dataset
	err := ins.DB.
		Preload("Articles", func(db *gorm.DB) *gorm.DB { return db.Order("articles.id") }).
		Preload("Articles.Compounds", func(db *gorm.DB) *gorm.DB { return db.Order("compounds.id") }).
		Preload("Articles.Compounds.CheckerCompound").
		Preload("Articles.CheckerArticle").
		Preload("CheckerRun").
		First(&dataset, datasetID).Error
	if err != nil {
		return nil, fmt.Errorf("load dataset %d: %w", datasetID, err)
	}
	if err := ins.sanityCheck(&dataset); err != nil {
		return nil, err
	}
	run := dataset.CheckerRun

	if err := ins.Atlas.Authenticate(); err != nil {
		return nil, err
	}

	run.Running = true
	if err := ins.DB.Save(run).Error; err != nil {
		return nil, err
	}
	ins.errors = nil
	ins.journals = nil

	total := len(dataset.Articles)
	log.Info("Starting insertion run", zap.Int("articles", total))

	for i := range dataset.Articles {
		article := &dataset.Articles[i]
		if article.Completed && !article.NeedsWork && article.IsNPArticle {
			if err := ins.insertArticle(article); err != nil {
				run.Running = false
				ins.DB.Save(run)
				return ins.errors, err
			}
		}
		ins.Progress.Update(i+1, total, fmt.Sprintf("Inserted article %d of %d", i+1, total))
	}

	if len(ins.errors) > 0 {
		log.Warn("Insertion finished with recorded errors", zap.Int("errors", len(ins.errors)))
		blob, err := json.Marshal(ins.errors)
		if err != nil {
			return ins.errors, err
		}
		run.Errors = datatypes.JSON(blob)
	}
	run.Inserted = true
	run.Running = false
	if err := ins.DB.Save(run).Error; err != nil {
		return ins.errors, err
	}
	log.Info("Insertion run completed", zap.Int("errors", len(ins.errors)))
	return ins.errors, nil
}

// sanityCheck erzwingt die Vorbedingungen des Inserts.
func (ins *Inserter) sanityCheck(dataset *models.Dataset) error {
	if dataset.Training {
		return fmt.Errorf("%w: dataset %d is a training dataset", ErrDatasetNotReady, dataset.ID)
	}
	if !dataset.Completed {
		return fmt.Errorf("%w: dataset %d is not completed", ErrDatasetNotReady, dataset.ID)
	}
	run := dataset.CheckerRun
	if run == nil || !run.Completed || !run.Standardized {
		return fmt.Errorf("%w: dataset %d has no completed checker run", ErrDatasetNotReady, dataset.ID)
	}
	if run.Inserted {
		return fmt.Errorf("%w: dataset %d is already inserted", ErrDatasetNotReady, dataset.ID)
	}
	var unresolved int64
	err := ins.DB.Model(&models.Problem{}).
		Where("dataset_id = ? AND resolved = ?", dataset.ID, false).
		Count(&unresolved).Error
	if err != nil {
		return err
	}
	if unresolved > 0 {
		return fmt.Errorf("%w: dataset %d has %d unresolved problems",
			ErrDatasetNotReady, dataset.ID, unresolved)
	}
	return nil
}

// insertArticle synchronisiert einen Artikel. Schlägt der Referenz-Schritt
// fehl, werden alle Verbindungen dieses Artikels übersprungen; nur
// Kontraktverletzungen brechen den Lauf ab.
func (ins *Inserter) insertArticle(article *models.Article) error {
	snapshot := article.CheckerArticle
	if snapshot == nil {
		return fmt.Errorf("article %d has no checker snapshot", article.ID)
	}
	if err := ins.ensureJournal(snapshot.Journal); err != nil {
		return err
	}
	ok, err := ins.syncReference(snapshot)
	if err != nil {
		return err
	}
	if !ok {
		ins.Logger.Warn("Reference sync failed, skipping compounds",
			zap.Uint("article_id", article.ID))
		return nil
	}

	for i := range article.Compounds {
		if err := ins.insertCompound(snapshot, &article.Compounds[i]); err != nil {
			return err
		}
	}
	return nil
}

// ensureJournal registriert das Journal im Atlas, falls es dort fehlt, und
// invalidiert danach die gecachte Journalliste.
func (ins *Inserter) ensureJournal(title string) error {
	if ins.journals == nil {
		titles, err := ins.Atlas.GetJournals()
		if err != nil {
			return err
		}
		ins.journals = make(map[string]struct{}, len(titles))
		for _, t := range titles {
			ins.journals[t] = struct{}{}
		}
	}
	if _, ok := ins.journals[title]; ok {
		return nil
	}
	if err := ins.Atlas.AddJournal(title); err != nil {
		var callErr *atlas.CallError
		if errors.As(err, &callErr) {
			ins.recordError("add_journal", title, nil, callErr)
			return nil
		}
		return err
	}
	ins.Logger.Info("Registered journal in the Atlas", zap.String("journal", title))
	ins.journals = nil
	return nil
}

// syncReference legt die Referenz an oder aktualisiert sie, wenn sich
// kuratierte Felder vom Atlas-Stand unterscheiden. Gibt false zurück, wenn
// der Schritt fehlschlug und die Verbindungen übersprungen werden müssen.
func (ins *Inserter) syncReference(snapshot *models.CheckerArticle) (bool, error) {
	existing, err := ins.Atlas.GetReference(snapshot.DOI)
	if err != nil {
		ins.recordError("get_reference", snapshot.DOI, nil, err)
		return false, nil
	}

	if existing == nil {
		payload := atlas.ReferenceIn{
			DOI:      snapshot.DOI,
			PMID:     snapshot.PMID,
			Authors:  snapshot.Authors,
			Title:    snapshot.Title,
			Journal:  snapshot.Journal,
			Year:     snapshot.Year,
			Volume:   snapshot.Volume,
			Issue:    snapshot.Issue,
			Pages:    snapshot.Pages,
			Abstract: snapshot.Abstract,
		}
		if err := ins.Atlas.InsertReference(payload); err != nil {
			ins.recordError("insert_reference", nil, payload, err)
			return false, nil
		}
		return true, nil
	}

	if !referenceChanged(snapshot, existing) {
		return true, nil
	}
	payload := atlas.ReferenceUpdate{
		PMID:    snapshot.PMID,
		Authors: snapshot.Authors,
		Title:   snapshot.Title,
		Journal: snapshot.Journal,
		Year:    snapshot.Year,
		Volume:  snapshot.Volume,
		Issue:   snapshot.Issue,
		Pages:   snapshot.Pages,
	}
	if err := ins.Atlas.UpdateReference(snapshot.DOI, payload); err != nil {
		ins.recordError("update_reference", existing, payload, err)
		return false, nil
	}
	return true, nil
}

// referenceChanged vergleicht die kuratierten Felder mit dem Atlas-Stand.
func referenceChanged(snapshot *models.CheckerArticle, ref *atlas.Reference) bool {
	if snapshot.Authors != ref.Authors || snapshot.Title != ref.Title ||
		snapshot.Journal != ref.Journal || snapshot.Year != ref.Year ||
		snapshot.Volume != ref.Volume || snapshot.Issue != ref.Issue ||
		snapshot.Pages != ref.Pages {
		return true
	}
	if snapshot.PMID != nil && (ref.PMID == nil || *snapshot.PMID != *ref.PMID) {
		return true
	}
	return false
}

// insertCompound verarbeitet eine Verbindung gemäß ihrer Disposition.
func (ins *Inserter) insertCompound(article *models.CheckerArticle, compound *models.Compound) error {
	snap := compound.CheckerCompound
	if snap == nil {
		return fmt.Errorf("compound %d has no checker snapshot", compound.ID)
	}
	if snap.Resolve == nil {
		return fmt.Errorf("%w: compound %d has no disposition", ErrResolutionBypassed, compound.ID)
	}
	log := ins.Logger.With(
		zap.Uint("compound_id", compound.ID),
		zap.String("disposition", snap.Resolve.String()),
	)

	switch *snap.Resolve {
	case models.ResolveNew:
		return ins.insertNewCompound(article, snap)
	case models.ResolveReplace, models.ResolveUpdate:
		if snap.NPAID == nil {
			ins.recordError("update_compound", snap, nil,
				fmt.Errorf("compound %d has no npaid", snap.ID))
			return nil
		}
		return ins.updateCompound(article, snap)
	case models.ResolveKeep:
		return nil
	case models.ResolveSynonym:
		// Noch kein Atlas-Endpunkt; nur die NPAID-Pflicht wird geprüft.
		if snap.NPAID == nil {
			ins.recordError("add_synonym", snap, nil,
				fmt.Errorf("synonym for compound %d has no npaid", snap.ID))
		}
		return nil
	case models.ResolveReject:
		log.Warn("Skipping rejected compound")
		return nil
	default:
		return fmt.Errorf("%w: compound %d has unknown disposition %d",
			ErrResolutionBypassed, compound.ID, *snap.Resolve)
	}
}

// insertNewCompound fügt eine als NEW aufgelöste Verbindung ein. Ein doch
// vorhandener Atlas-Treffer ist fatal: der Reviewer hielt sie für neu.
func (ins *Inserter) insertNewCompound(article *models.CheckerArticle, snap *models.CheckerCompound) error {
	matches, err := ins.Atlas.SearchInchikey(snap.InChIKey)
	if err != nil {
		return err
	}
	for _, match := range matches {
		if match.InChIKey == snap.InChIKey {
			return fmt.Errorf("%w: compound %d unexpectedly matches NPA%06d",
				ErrResolutionBypassed, snap.ID, match.NPAID)
		}
	}
	if snap.AtlasTaxonID == nil {
		ins.recordError("insert_compound", snap, nil,
			fmt.Errorf("compound %d has no resolved taxon", snap.ID))
		return nil
	}

	payload := atlas.CompoundIn{
		IsolationIn: atlas.IsolationIn{
			OriginDOI:     article.DOI,
			OriginTaxonID: *snap.AtlasTaxonID,
			OriginSpecies: snap.SourceSpecies,
		},
		Smiles: snap.Smiles,
		Name:   snap.Name,
	}
	if err := ins.Atlas.InsertCompound(payload); err != nil {
		var callErr *atlas.CallError
		if errors.As(err, &callErr) {
			ins.recordError("insert_compound", nil, payload, callErr)
			return nil
		}
		return err
	}
	return nil
}

// updateCompound gleicht eine bestehende Atlas-Verbindung facettenweise ab:
// Struktur, Name und Ursprung sind unabhängige Endpunkte, aufgerufen wird nur
// für tatsächlich geänderte Facetten.
func (ins *Inserter) updateCompound(article *models.CheckerArticle, snap *models.CheckerCompound) error {
	existing, err := ins.Atlas.GetCompound(*snap.NPAID)
	if err != nil {
		return err
	}
	if existing == nil {
		ins.recordError("update_compound", snap, nil,
			fmt.Errorf("NPA%06d does not exist in the atlas", *snap.NPAID))
		return nil
	}

	if existing.InChIKey != snap.InChIKey {
		if err := ins.Atlas.UpdateCompoundStructure(*snap.NPAID, snap.Smiles); err != nil {
			if !ins.recordCallError("update_compound_structure", existing.Smiles, snap.Smiles, err) {
				return err
			}
		}
	}
	if existing.Name != snap.Name {
		if err := ins.Atlas.UpdateCompoundName(*snap.NPAID, snap.Name); err != nil {
			if !ins.recordCallError("update_compound_name", existing.Name, snap.Name, err) {
				return err
			}
		}
	}
	if snap.AtlasTaxonID != nil &&
		(existing.OriginOrganism.Taxon.ID != *snap.AtlasTaxonID ||
			existing.OriginOrganism.Species != snap.SourceSpecies) {
		origin := atlas.IsolationIn{
			OriginDOI:     article.DOI,
			OriginTaxonID: *snap.AtlasTaxonID,
			OriginSpecies: snap.SourceSpecies,
		}
		if err := ins.Atlas.UpdateCompoundOrigin(*snap.NPAID, origin); err != nil {
			if !ins.recordCallError("update_compound_origin", existing.OriginOrganism, origin, err) {
				return err
			}
		}
	}
	return nil
}

// recordCallError protokolliert eine Atlas-Ablehnung und meldet, ob der
// Fehler konsumiert wurde. Transportfehler bleiben beim Aufrufer.
func (ins *Inserter) recordCallError(action string, original, updated any, err error) bool {
	var callErr *atlas.CallError
	if !errors.As(err, &callErr) {
		return false
	}
	ins.recordError(action, original, updated, callErr)
	return true
}

func (ins *Inserter) recordError(action string, original, updated any, err error) {
	ins.Logger.Error("Atlas call failed",
		zap.String("action", action), zap.Error(err))
	ins.errors = append(ins.errors, ApiError{
		Action:       action,
		OriginalData: original,
		NewData:      updated,
		ApiResponse:  err.Error(),
	})
}
