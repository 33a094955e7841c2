package checker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/NPAtlas/npatlas-curator/atlas"
	"github.com/NPAtlas/npatlas-curator/models"
)

func newTestInserter(db *gorm.DB, fa *fakeAtlas) *Inserter {
	return &Inserter{DB: db, Atlas: fa, Logger: zap.NewNop(), Progress: NopProgress{}}
}

// seedInsertableDataset baut einen vollständig geprüften und aufgelösten
// Datensatz, der das Sanity-Gate passiert.
func seedInsertableDataset(t *testing.T, db *gorm.DB, fa *fakeAtlas, disposition models.Resolve) models.Dataset {
	t.Helper()
	fa.taxa["Streptomyces"] = []atlas.TaxonMatch{{ID: 77, Name: "Streptomyces"}}
	dataset := seedDataset(t, db)

	chk := newTestChecker(db, fa)
	require.NoError(t, chk.Run(dataset.ID, false, false))
	require.NoError(t, chk.Standardize(dataset.ID))

	require.NoError(t, db.Model(&models.CheckerCompound{}).
		Where("id = ?", dataset.Articles[0].Compounds[0].ID).
		Update("resolve", disposition).Error)
	return dataset
}

func TestInserterSanityGate(t *testing.T) {
	db := openTestDB(t)
	fa := newFakeAtlas()
	dataset := seedInsertableDataset(t, db, fa, models.ResolveKeep)
	ins := newTestInserter(db, fa)

	t.Run("training dataset", func(t *testing.T) {
		require.NoError(t, db.Model(&models.Dataset{}).
			Where("id = ?", dataset.ID).Update("training", true).Error)
		_, err := ins.Run(dataset.ID)
		assert.ErrorIs(t, err, ErrDatasetNotReady)
		require.NoError(t, db.Model(&models.Dataset{}).
			Where("id = ?", dataset.ID).Update("training", false).Error)
	})

	t.Run("unresolved problem", func(t *testing.T) {
		problem := models.Problem{
			DatasetID: dataset.ID,
			ArticleID: dataset.Articles[0].ID,
			Problem:   models.ProblemGenus,
		}
		require.NoError(t, db.Create(&problem).Error)
		_, err := ins.Run(dataset.ID)
		assert.ErrorIs(t, err, ErrDatasetNotReady)
		require.NoError(t, db.Delete(&problem).Error)
	})

	t.Run("not standardized", func(t *testing.T) {
		require.NoError(t, db.Model(&models.CheckerRun{}).
			Where("dataset_id = ?", dataset.ID).Update("standardized", false).Error)
		_, err := ins.Run(dataset.ID)
		assert.ErrorIs(t, err, ErrDatasetNotReady)
		require.NoError(t, db.Model(&models.CheckerRun{}).
			Where("dataset_id = ?", dataset.ID).Update("standardized", true).Error)
	})

	t.Run("already inserted", func(t *testing.T) {
		require.NoError(t, db.Model(&models.CheckerRun{}).
			Where("dataset_id = ?", dataset.ID).Update("inserted", true).Error)
		_, err := ins.Run(dataset.ID)
		assert.ErrorIs(t, err, ErrDatasetNotReady)
	})
}

func TestInserterNewCompound(t *testing.T) {
	db := openTestDB(t)
	fa := newFakeAtlas()
	dataset := seedInsertableDataset(t, db, fa, models.ResolveNew)

	ins := newTestInserter(db, fa)
	apiErrors, err := ins.Run(dataset.ID)
	require.NoError(t, err)
	assert.Empty(t, apiErrors)

	require.Len(t, fa.insertedRefs, 1)
	assert.Equal(t, "10.1021/acs.jnatprod.0c01234", fa.insertedRefs[0].DOI)
	require.Len(t, fa.insertedCompounds, 1)
	inserted := fa.insertedCompounds[0]
	assert.Equal(t, "Testamide a", inserted.Name)
	assert.Equal(t, 77, inserted.OriginTaxonID)
	assert.Equal(t, "coelicolor", inserted.OriginSpecies)
	assert.Equal(t, "10.1021/acs.jnatprod.0c01234", inserted.OriginDOI)

	var run models.CheckerRun
	require.NoError(t, db.Where("dataset_id = ?", dataset.ID).First(&run).Error)
	assert.True(t, run.Inserted)
	assert.False(t, run.Running)
	assert.Empty(t, run.Errors)
}

func TestInserterKeepMakesNoCompoundCalls(t *testing.T) {
	db := openTestDB(t)
	fa := newFakeAtlas()
	dataset := seedInsertableDataset(t, db, fa, models.ResolveKeep)

	ins := newTestInserter(db, fa)
	apiErrors, err := ins.Run(dataset.ID)
	require.NoError(t, err)
	assert.Empty(t, apiErrors)
	assert.Empty(t, fa.insertedCompounds)
	assert.Empty(t, fa.structureUpdates)
	assert.Empty(t, fa.nameUpdates)
	assert.Empty(t, fa.originUpdates)
}

func TestInserterFacetDiff(t *testing.T) {
	db := openTestDB(t)
	fa := newFakeAtlas()
	dataset := seedInsertableDataset(t, db, fa, models.ResolveUpdate)
	npaid := 100
	require.NoError(t, db.Model(&models.CheckerCompound{}).
		Where("id = ?", dataset.Articles[0].Compounds[0].ID).
		Update("npaid", npaid).Error)

	// Struktur und Taxon stimmen überein, nur der Name weicht ab.
	taxonID := 77
	existing := &atlas.Compound{NPAID: npaid, Name: "Old name", InChIKey: smilesKey("CCO")}
	existing.OriginOrganism.Taxon.ID = taxonID
	existing.OriginOrganism.Species = "coelicolor"
	fa.compounds[npaid] = existing

	ins := newTestInserter(db, fa)
	apiErrors, err := ins.Run(dataset.ID)
	require.NoError(t, err)
	assert.Empty(t, apiErrors)

	assert.Empty(t, fa.structureUpdates)
	assert.Empty(t, fa.originUpdates)
	require.Len(t, fa.nameUpdates, 1)
	assert.Equal(t, npaid, fa.nameUpdates[0])
}

func TestInserterNoCallsWhenNothingChanged(t *testing.T) {
	db := openTestDB(t)
	fa := newFakeAtlas()
	dataset := seedInsertableDataset(t, db, fa, models.ResolveUpdate)
	npaid := 100
	require.NoError(t, db.Model(&models.CheckerCompound{}).
		Where("id = ?", dataset.Articles[0].Compounds[0].ID).
		Update("npaid", npaid).Error)

	existing := &atlas.Compound{NPAID: npaid, Name: "Testamide a", InChIKey: smilesKey("CCO")}
	existing.OriginOrganism.Taxon.ID = 77
	existing.OriginOrganism.Species = "coelicolor"
	fa.compounds[npaid] = existing

	ins := newTestInserter(db, fa)
	apiErrors, err := ins.Run(dataset.ID)
	require.NoError(t, err)
	assert.Empty(t, apiErrors)
	assert.Empty(t, fa.structureUpdates)
	assert.Empty(t, fa.nameUpdates)
	assert.Empty(t, fa.originUpdates)
}

func TestInserterPartialFailureIsolation(t *testing.T) {
	db := openTestDB(t)
	fa := newFakeAtlas()
	fa.taxa["Streptomyces"] = []atlas.TaxonMatch{{ID: 77}}

	dataset := models.Dataset{
		Completed: true,
		Articles: []models.Article{
			{
				DOI: "10.1021/failing.article", Journal: "J. Nat. Prod.", Year: 2020,
				Authors: "Smith, J.; Doe, A.", Title: "A failing reference sync",
				Completed: true, IsNPArticle: true,
				Compounds: []models.Compound{{
					Name: "lost compound", Smiles: "CCN",
					SourceOrganism: "Streptomyces coelicolor",
				}},
			},
			{
				DOI: "10.1021/acs.jnatprod.0c09999", Journal: "J. Nat. Prod.", Year: 2021,
				Authors: "Miller, K.", Title: "A perfectly fine article",
				Completed: true, IsNPArticle: true,
				Compounds: []models.Compound{{
					Name: "surviving compound", Smiles: "CCC",
					SourceOrganism: "Streptomyces coelicolor",
				}},
			},
		},
	}
	require.NoError(t, db.Create(&dataset).Error)
	require.NoError(t, db.Create(&models.Journal{
		Journal: "Journal of Natural Products", Abbrev: "J. Nat. Prod.",
	}).Error)

	chk := newTestChecker(db, fa)
	require.NoError(t, chk.Run(dataset.ID, false, false))
	require.NoError(t, chk.Standardize(dataset.ID))
	result := db.Model(&models.CheckerCompound{}).
		Where("id IS NOT NULL").Update("resolve", models.ResolveNew)
	require.NoError(t, result.Error)

	fa.failInsert["10.1021/failing.article"] = true

	ins := newTestInserter(db, fa)
	apiErrors, err := ins.Run(dataset.ID)
	require.NoError(t, err)
	require.Len(t, apiErrors, 1)
	assert.Equal(t, "insert_reference", apiErrors[0].Action)

	// Nur die Verbindung des intakten Artikels wurde übertragen.
	require.Len(t, fa.insertedCompounds, 1)
	assert.Equal(t, "Surviving compound", fa.insertedCompounds[0].Name)

	var run models.CheckerRun
	require.NoError(t, db.Where("dataset_id = ?", dataset.ID).First(&run).Error)
	assert.True(t, run.Inserted)
	assert.NotEmpty(t, run.Errors)
	assert.Contains(t, string(run.Errors), "insert_reference")
}

func TestInserterUnresolvedDispositionIsFatal(t *testing.T) {
	db := openTestDB(t)
	fa := newFakeAtlas()
	dataset := seedInsertableDataset(t, db, fa, models.ResolveKeep)
	require.NoError(t, db.Model(&models.CheckerCompound{}).
		Where("id = ?", dataset.Articles[0].Compounds[0].ID).
		Update("resolve", nil).Error)

	ins := newTestInserter(db, fa)
	_, err := ins.Run(dataset.ID)
	assert.ErrorIs(t, err, ErrResolutionBypassed)

	var run models.CheckerRun
	require.NoError(t, db.Where("dataset_id = ?", dataset.ID).First(&run).Error)
	assert.False(t, run.Inserted)
}

func TestInserterUncaughtAtlasMatchIsFatal(t *testing.T) {
	db := openTestDB(t)
	fa := newFakeAtlas()
	dataset := seedInsertableDataset(t, db, fa, models.ResolveNew)

	key := smilesKey("CCO")
	fa.matches[strings.SplitN(key, "-", 2)[0]] = []atlas.CompoundMatch{
		{NPAID: 123, InChIKey: key},
	}

	ins := newTestInserter(db, fa)
	_, err := ins.Run(dataset.ID)
	assert.ErrorIs(t, err, ErrResolutionBypassed)
}

func TestInserterRegistersMissingJournal(t *testing.T) {
	db := openTestDB(t)
	fa := newFakeAtlas()
	dataset := seedInsertableDataset(t, db, fa, models.ResolveKeep)
	fa.journals = []string{"Some Other Journal"}

	ins := newTestInserter(db, fa)
	apiErrors, err := ins.Run(dataset.ID)
	require.NoError(t, err)
	assert.Empty(t, apiErrors)
	assert.Equal(t, []string{"Journal of Natural Products"}, fa.addedJournals)
}

func TestInserterRecordsJournalRejection(t *testing.T) {
	db := openTestDB(t)
	fa := newFakeAtlas()
	dataset := seedInsertableDataset(t, db, fa, models.ResolveKeep)
	fa.journals = []string{"Some Other Journal"}
	fa.failJournal["Journal of Natural Products"] = true

	ins := newTestInserter(db, fa)
	apiErrors, err := ins.Run(dataset.ID)
	require.NoError(t, err)
	require.Len(t, apiErrors, 1)
	assert.Equal(t, "add_journal", apiErrors[0].Action)

	// Die Referenz wird trotz abgelehnter Journal-Registrierung angelegt.
	assert.Len(t, fa.insertedRefs, 1)

	var run models.CheckerRun
	require.NoError(t, db.Where("dataset_id = ?", dataset.ID).First(&run).Error)
	assert.True(t, run.Inserted)
	assert.Contains(t, string(run.Errors), "add_journal")
}

func TestInserterRejectedCompoundIsSkipped(t *testing.T) {
	db := openTestDB(t)
	fa := newFakeAtlas()
	fa.taxa["Streptomyces"] = []atlas.TaxonMatch{{ID: 77}}
	dataset := seedDataset(t, db,
		models.Compound{Name: "withdrawn compound", Smiles: "CCO",
			SourceOrganism: "Streptomyces coelicolor"},
		models.Compound{Name: "fresh compound", Smiles: "CCC",
			SourceOrganism: "Streptomyces coelicolor"},
	)
	chk := newTestChecker(db, fa)
	require.NoError(t, chk.Run(dataset.ID, false, false))
	require.NoError(t, chk.Standardize(dataset.ID))
	require.NoError(t, db.Model(&models.CheckerCompound{}).
		Where("id = ?", dataset.Articles[0].Compounds[0].ID).
		Update("resolve", models.ResolveReject).Error)
	require.NoError(t, db.Model(&models.CheckerCompound{}).
		Where("id = ?", dataset.Articles[0].Compounds[1].ID).
		Update("resolve", models.ResolveNew).Error)

	ins := newTestInserter(db, fa)
	apiErrors, err := ins.Run(dataset.ID)
	require.NoError(t, err)
	assert.Empty(t, apiErrors)

	// Die abgelehnte Verbindung bleibt aus, der Rest des Artikels nicht.
	require.Len(t, fa.insertedCompounds, 1)
	assert.Equal(t, "Fresh compound", fa.insertedCompounds[0].Name)
}

func TestInserterSynonymRequiresNPAID(t *testing.T) {
	db := openTestDB(t)
	fa := newFakeAtlas()
	dataset := seedInsertableDataset(t, db, fa, models.ResolveSynonym)

	ins := newTestInserter(db, fa)
	apiErrors, err := ins.Run(dataset.ID)
	require.NoError(t, err)
	require.Len(t, apiErrors, 1)
	assert.Equal(t, "add_synonym", apiErrors[0].Action)
}
