package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Journal{}, &AltJournal{}, &Taxon{}, &Retraction{}))
	return db
}

func TestNormalizeJournalTitle(t *testing.T) {
	assert.Equal(t, "j nat prod", NormalizeJournalTitle(" J. Nat. Prod. "))
	assert.Equal(t, "marine drugs", NormalizeJournalTitle("Marine Drugs"))
}

func TestCheckJournalMatch(t *testing.T) {
	db := openTestDB(t)
	journal := Journal{Journal: "Journal of Natural Products", Abbrev: "J. Nat. Prod."}
	require.NoError(t, db.Create(&journal).Error)
	require.NoError(t, db.Create(&AltJournal{
		JournalID:  journal.ID,
		AltJournal: NormalizeJournalTitle("Jour. Natural Products"),
	}).Error)

	t.Run("exact title", func(t *testing.T) {
		match, err := CheckJournalMatch(db, "Journal of Natural Products")
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, journal.ID, match.ID)
	})

	t.Run("normalized abbreviation", func(t *testing.T) {
		match, err := CheckJournalMatch(db, "j nat prod")
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, journal.ID, match.ID)
	})

	t.Run("registered alternative", func(t *testing.T) {
		match, err := CheckJournalMatch(db, "Jour. Natural Products")
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, journal.ID, match.ID)
	})

	t.Run("no match", func(t *testing.T) {
		match, err := CheckJournalMatch(db, "Unheard-of Journal")
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("empty title", func(t *testing.T) {
		match, err := CheckJournalMatch(db, "")
		require.NoError(t, err)
		assert.Nil(t, match)
	})
}

func TestTaxonAlternatives(t *testing.T) {
	db := openTestDB(t)
	taxon := Taxon{Taxon: "Streptomyces", AtlasTaxonID: 55}
	taxon.AddAlternative("Streptomices")
	require.NoError(t, db.Create(&taxon).Error)

	found, err := SearchTaxonAlternatives(db, "Streptomices")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 55, found.AtlasTaxonID)

	missing, err := SearchTaxonAlternatives(db, "Nonexistus")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRetractionLookups(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&Retraction{
		ArticleDOI:       "10.1000/retracted",
		CompoundInchikey: "AAAAAAAAAAAAAA-BBBBBBBBBB-N",
		CompoundName:     "Retractamide a",
	}).Error)

	retracted, err := RetractedArticle(db, "10.1000/retracted")
	require.NoError(t, err)
	assert.True(t, retracted)

	retracted, err = RetractedArticle(db, "10.1000/fine")
	require.NoError(t, err)
	assert.False(t, retracted)

	retracted, err = RetractedCompound(db, "AAAAAAAAAAAAAA-BBBBBBBBBB-N", "")
	require.NoError(t, err)
	assert.True(t, retracted)

	retracted, err = RetractedCompound(db, "CCCCCCCCCCCCCC-DDDDDDDDDD-N", "Retractamide a")
	require.NoError(t, err)
	assert.True(t, retracted, "falls back to name lookup")

	retracted, err = RetractedCompound(db, "", "")
	require.NoError(t, err)
	assert.False(t, retracted)
}
