package checker

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/NPAtlas/npatlas-curator/models"
)

// Standardize schreibt alle SMILES des Datensatzes in ihre standardisierte
// Form zurück und markiert den Lauf als standardisiert. Muss vor dem Insert
// abgeschlossen sein.
func (c *Checker) Standardize(datasetID uint) error {
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

	total := len(dataset.Articles)
	log.Info("Standardizing dataset structures", zap.Int("articles", total))

	for i := range dataset.Articles {
		article := &dataset.Articles[i]
		for j := range article.Compounds {
			compound := &article.Compounds[j]
			if compound.Smiles == "" {
				continue
			}
			smiles, err := c.Chem.StandardizeSmiles(compound.Smiles)
			if err != nil {
				return fmt.Errorf("standardize compound %d: %w", compound.ID, err)
			}
			if smiles == compound.Smiles {
				continue
			}
			if err := c.DB.Model(compound).Update("smiles", smiles).Error; err != nil {
				return err
			}
		}
		c.Progress.Update(i+1, total, fmt.Sprintf("Standardized article %d of %d", i+1, total))
	}

	run := dataset.CheckerRun
	if run == nil {
		run = &models.CheckerRun{DatasetID: dataset.ID}
	}
	run.Standardized = true
	return c.DB.Save(run).Error
}
