package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/NPAtlas/npatlas-curator/atlas"
	"github.com/NPAtlas/npatlas-curator/checker"
	"github.com/NPAtlas/npatlas-curator/chem"
	"github.com/NPAtlas/npatlas-curator/config"
	"github.com/NPAtlas/npatlas-curator/models"
	"github.com/NPAtlas/npatlas-curator/notify"
	"github.com/NPAtlas/npatlas-curator/tasks"
)

var (
	datasetsCheckedCounter  prometheus.Counter
	datasetsInsertedCounter prometheus.Counter
	problemsFoundCounter    prometheus.Counter
)

func init() {
	datasetsCheckedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datasets_checked_total",
			Help: "Total number of completed checker runs.",
		},
	)
	datasetsInsertedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datasets_inserted_total",
			Help: "Total number of datasets inserted into the Atlas.",
		},
	)
	problemsFoundCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "problems_found_total",
			Help: "Total number of problems raised by the checker.",
		},
	)
	prometheus.MustRegister(datasetsCheckedCounter, datasetsInsertedCounter, problemsFoundCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to curation database", zap.Error(err))
	}
	logging.Info("Successfully connected to curation database.")

	logging.Info("Running database auto-migration...")
	db.AutoMigrate(
		&models.Dataset{}, &models.Article{}, &models.Compound{},
		&models.CheckerRun{}, &models.CheckerArticle{}, &models.CheckerCompound{},
		&models.Problem{},
		&models.Journal{}, &models.AltJournal{}, &models.Taxon{}, &models.Retraction{},
	)

	atlasClient := atlas.NewClient(cfg.AtlasBaseURL, cfg.AtlasAPIKey, atlas.Credentials{
		Username:     cfg.AtlasUsername,
		Password:     cfg.AtlasPassword,
		ClientID:     cfg.AtlasClientID,
		ClientSecret: cfg.AtlasClientSecret,
	}, logging)
	chemService := chem.NewService(cfg.StructureServiceURL, logging)
	runner := tasks.NewRunner(logging)
	slack := notify.NewSlack(cfg.SlackWebhookURL, logging)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupDatasetRoutes(router, db, logging)
	setupCheckerRoutes(router, db, cfg, atlasClient, chemService, runner, slack, logging)
	setupProblemRoutes(router, db, atlasClient, logging)
	setupAutocompleteRoutes(router, db, atlasClient, logging)

	cronScheduler := cron.New()
	if cfg.AutoCheck {
		cronScheduler.AddFunc(cfg.CronSchedule, func() {
			logging.Info("Running scheduled checker job...")
			runScheduledChecks(db, cfg, atlasClient, chemService, runner, logging)
		})
		cronScheduler.Start()
	}

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupDatasetRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/datasets")

	// Upload eines kompletten Kurations-Batches inklusive Artikeln und
	// Verbindungen.
	rg.POST("/", func(c *gin.Context) {
		type CompoundUpload struct {
			Name           string `json:"name" binding:"required"`
			Smiles         string `json:"smiles" binding:"required"`
			SourceOrganism string `json:"source_organism"`
			NPAID          *int   `json:"npaid"`
		}
		type ArticleUpload struct {
			DOI       string           `json:"doi"`
			PMID      *int             `json:"pmid"`
			Journal   string           `json:"journal"`
			Year      int              `json:"year"`
			Volume    string           `json:"volume"`
			Issue     string           `json:"issue"`
			Pages     string           `json:"pages"`
			Title     string           `json:"title"`
			Authors   string           `json:"authors"`
			Abstract  string           `json:"abstract"`
			Notes     string           `json:"notes"`
			NpaArtID  *int             `json:"npa_artid"`
			Compounds []CompoundUpload `json:"compounds"`
		}
		type DatasetUpload struct {
			CuratorID    *uint           `json:"curator_id"`
			Instructions string          `json:"instructions"`
			Training     bool            `json:"training"`
			Articles     []ArticleUpload `json:"articles" binding:"required"`
		}

		var req DatasetUpload
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		dataset := models.Dataset{
			CuratorID:    req.CuratorID,
			Instructions: req.Instructions,
			Training:     req.Training,
		}
		for _, a := range req.Articles {
			article := models.Article{
				DOI: a.DOI, PMID: a.PMID, Journal: a.Journal,
				Year: a.Year, Volume: a.Volume, Issue: a.Issue, Pages: a.Pages,
				Title: a.Title, Authors: a.Authors, Abstract: a.Abstract,
				Notes: a.Notes, NpaArtID: a.NpaArtID,
				IsNPArticle: true,
			}
			for _, comp := range a.Compounds {
				article.Compounds = append(article.Compounds, models.Compound{
					Name:           comp.Name,
					Smiles:         comp.Smiles,
					SourceOrganism: comp.SourceOrganism,
					NPAID:          comp.NPAID,
				})
			}
			dataset.Articles = append(dataset.Articles, article)
		}
		if err := db.Create(&dataset).Error; err != nil {
			log.Error("Failed to create dataset", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create dataset"})
			return
		}
		log.Info("Dataset created", zap.Uint("dataset_id", dataset.ID),
			zap.Int("articles", len(dataset.Articles)))
		c.JSON(http.StatusCreated, dataset)
	})

	rg.GET("/", func(c *gin.Context) {
		var datasets []models.Dataset
		if err := db.Preload("CheckerRun").Find(&datasets).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, datasets)
	})

	rg.GET("/:id", func(c *gin.Context) {
		var dataset models.Dataset
		err := db.Preload("Articles.Compounds.CheckerCompound").
			Preload("Articles.CheckerArticle").
			Preload("CheckerRun").
			First(&dataset, c.Param("id")).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, dataset)
	})

	// Entfernt alle Snapshots, Probleme und den Lauf-Zustand, damit der
	// Checker komplett von vorne beginnen kann.
	rg.POST("/:id/reset", func(c *gin.Context) {
		var dataset models.Dataset
		if err := db.Preload("Articles.Compounds").First(&dataset, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
			return
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			var articleIDs, compoundIDs []uint
			for _, article := range dataset.Articles {
				articleIDs = append(articleIDs, article.ID)
				for _, compound := range article.Compounds {
					compoundIDs = append(compoundIDs, compound.ID)
				}
			}
			if len(articleIDs) > 0 {
				if err := tx.Delete(&models.CheckerArticle{}, articleIDs).Error; err != nil {
					return err
				}
			}
			if len(compoundIDs) > 0 {
				if err := tx.Delete(&models.CheckerCompound{}, compoundIDs).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("dataset_id = ?", dataset.ID).Delete(&models.Problem{}).Error; err != nil {
				return err
			}
			return tx.Where("dataset_id = ?", dataset.ID).Delete(&models.CheckerRun{}).Error
		})
		if err != nil {
			log.Error("Failed to reset dataset", zap.Uint("dataset_id", dataset.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset dataset"})
			return
		}
		log.Info("Dataset reset", zap.Uint("dataset_id", dataset.ID))
		c.JSON(http.StatusOK, gin.H{"message": "dataset reset"})
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		var dataset models.Dataset
		if err := db.Preload("Articles.Compounds").First(&dataset, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
			return
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			for _, article := range dataset.Articles {
				for _, compound := range article.Compounds {
					if err := tx.Delete(&models.CheckerCompound{}, compound.ID).Error; err != nil {
						return err
					}
				}
				if err := tx.Delete(&models.CheckerArticle{}, article.ID).Error; err != nil {
					return err
				}
				if err := tx.Where("article_id = ?", article.ID).Delete(&models.Compound{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("dataset_id = ?", dataset.ID).Delete(&models.Article{}).Error; err != nil {
				return err
			}
			if err := tx.Where("dataset_id = ?", dataset.ID).Delete(&models.Problem{}).Error; err != nil {
				return err
			}
			if err := tx.Where("dataset_id = ?", dataset.ID).Delete(&models.CheckerRun{}).Error; err != nil {
				return err
			}
			return tx.Delete(&dataset).Error
		})
		if err != nil {
			log.Error("Failed to delete dataset", zap.Uint("dataset_id", dataset.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete dataset"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "dataset deleted"})
	})
}

func setupCheckerRoutes(router *gin.Engine, db *gorm.DB, cfg *config.Config,
	atlasClient *atlas.Client, chemService *chem.Service, runner *tasks.Runner,
	slack *notify.Slack, log *zap.Logger) {
	rg := router.Group("/checker")

	newChecker := func(progress checker.ProgressSink) *checker.Checker {
		return &checker.Checker{
			DB:              db,
			Atlas:           atlasClient,
			Chem:            chemService,
			Logger:          log,
			Progress:        progress,
			StrictFlatMatch: cfg.StrictFlatMatch,
		}
	}

	launch := func(c *gin.Context, datasetID uint, name string, fn func(t *tasks.Task) (any, error)) {
		var running int64
		db.Model(&models.CheckerRun{}).
			Where("dataset_id = ? AND running = ?", datasetID, true).
			Count(&running)
		if running > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress for this dataset"})
			return
		}
		task := runner.Launch(name, fn)
		db.Model(&models.CheckerRun{}).Where("dataset_id = ?", datasetID).
			Update("task_id", task.ID)
		c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID})
	}

	rg.POST("/dataset/:id/standardize", func(c *gin.Context) {
		var dataset models.Dataset
		if err := db.First(&dataset, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
			return
		}
		launch(c, dataset.ID, "standardize", func(t *tasks.Task) (any, error) {
			if err := newChecker(t).Standardize(dataset.ID); err != nil {
				return nil, err
			}
			return gin.H{"dataset_id": dataset.ID, "standardized": true}, nil
		})
	})

	rg.POST("/dataset/:id/check", func(c *gin.Context) {
		var dataset models.Dataset
		if err := db.First(&dataset, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
			return
		}
		restart := c.Query("restart") == "true"
		standardize := c.Query("standardize") != "false"

		launch(c, dataset.ID, "check", func(t *tasks.Task) (any, error) {
			if err := newChecker(t).Run(dataset.ID, standardize, restart); err != nil {
				return nil, err
			}
			datasetsCheckedCounter.Inc()
			var problems int64
			db.Model(&models.Problem{}).Where("dataset_id = ?", dataset.ID).Count(&problems)
			problemsFoundCounter.Add(float64(problems))
			slack.Send("Dataset %d checked: %d problems found", dataset.ID, problems)
			return gin.H{
				"dataset_id": dataset.ID,
				"problems":   problems,
				"result_url": fmt.Sprintf("/problems/dataset/%d", dataset.ID),
			}, nil
		})
	})

	rg.POST("/dataset/:id/insert", func(c *gin.Context) {
		var dataset models.Dataset
		if err := db.First(&dataset, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
			return
		}
		launch(c, dataset.ID, "insert", func(t *tasks.Task) (any, error) {
			inserter := &checker.Inserter{
				DB:       db,
				Atlas:    atlasClient,
				Logger:   log,
				Progress: t,
			}
			apiErrors, err := inserter.Run(dataset.ID)
			if err != nil {
				return nil, err
			}
			datasetsInsertedCounter.Inc()
			slack.Send("Dataset %d inserted into the Atlas with %d recorded errors",
				dataset.ID, len(apiErrors))
			return gin.H{"dataset_id": dataset.ID, "errors": len(apiErrors)}, nil
		})
	})

	rg.GET("/status/:taskID", func(c *gin.Context) {
		task, ok := runner.Get(c.Param("taskID"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusOK, task.Status())
	})

	rg.GET("/running", func(c *gin.Context) {
		var runs []models.CheckerRun
		if err := db.Where("running = ?", true).Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, runs)
	})
}

func setupProblemRoutes(router *gin.Engine, db *gorm.DB, atlasClient *atlas.Client, log *zap.Logger) {
	rg := router.Group("/problems")

	rg.GET("/dataset/:id", func(c *gin.Context) {
		query := db.Where("dataset_id = ?", c.Param("id"))
		if c.Query("unresolved") == "true" {
			query = query.Where("resolved = ?", false)
		}
		var problems []models.Problem
		if err := query.Order("article_id, id").Find(&problems).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, problems)
	})

	rg.POST("/:id/resolve", func(c *gin.Context) {
		var res checker.Resolution
		if err := c.ShouldBindJSON(&res); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		var problem models.Problem
		if err := db.First(&problem, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "problem not found"})
			return
		}
		resolver := &checker.Resolver{DB: db, Atlas: atlasClient, Logger: log}
		if err := resolver.Resolve(problem.ID, res); err != nil {
			if errors.Is(err, checker.ErrInvalidResolution) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			log.Error("Failed to resolve problem", zap.Uint("problem_id", problem.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve problem"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "problem resolved"})
	})
}

// rankTaxaCache hält die Taxa eines Rangs für ein kurzes Zeitfenster vor,
// damit das Autocomplete nicht jede Eingabe an den Atlas weiterreicht.
type rankTaxaCache struct {
	mu      sync.Mutex
	entries map[string]rankTaxaEntry
}

type rankTaxaEntry struct {
	taxa    []atlas.RankTaxon
	expires time.Time
}

const rankTaxaTTL = 120 * time.Second

func (rc *rankTaxaCache) get(rank string, fetch func() ([]atlas.RankTaxon, error)) ([]atlas.RankTaxon, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if entry, ok := rc.entries[rank]; ok && time.Now().Before(entry.expires) {
		return entry.taxa, nil
	}
	taxa, err := fetch()
	if err != nil {
		return nil, err
	}
	rc.entries[rank] = rankTaxaEntry{taxa: taxa, expires: time.Now().Add(rankTaxaTTL)}
	return taxa, nil
}

func setupAutocompleteRoutes(router *gin.Engine, db *gorm.DB, atlasClient *atlas.Client, log *zap.Logger) {
	cache := &rankTaxaCache{entries: make(map[string]rankTaxaEntry)}

	rg := router.Group("/autocomplete")

	rg.GET("/journals", func(c *gin.Context) {
		q := strings.TrimSpace(c.Query("q"))
		query := db.Model(&models.Journal{})
		if q != "" {
			query = query.Where("LOWER(journal) LIKE ? OR LOWER(abbrev) LIKE ?",
				"%"+strings.ToLower(q)+"%", "%"+strings.ToLower(q)+"%")
		}
		var journals []models.Journal
		if err := query.Limit(20).Find(&journals).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, journals)
	})

	rg.GET("/taxa/ranks", func(c *gin.Context) {
		ranks, err := atlasClient.GetRanks()
		if err != nil {
			log.Error("Failed to fetch taxon ranks", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "atlas unavailable"})
			return
		}
		c.JSON(http.StatusOK, ranks)
	})

	rg.GET("/taxa/:rank", func(c *gin.Context) {
		rank := c.Param("rank")
		taxa, err := cache.get(rank, func() ([]atlas.RankTaxon, error) {
			return atlasClient.GetRankTaxa(rank)
		})
		if err != nil {
			log.Error("Failed to fetch rank taxa", zap.String("rank", rank), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "atlas unavailable"})
			return
		}
		q := strings.ToLower(strings.TrimSpace(c.Query("q")))
		if q == "" {
			c.JSON(http.StatusOK, taxa)
			return
		}
		filtered := make([]atlas.RankTaxon, 0, 20)
		for _, taxon := range taxa {
			if strings.Contains(strings.ToLower(taxon.OriginalName), q) {
				filtered = append(filtered, taxon)
				if len(filtered) == 20 {
					break
				}
			}
		}
		c.JSON(http.StatusOK, filtered)
	})
}

// runScheduledChecks prüft alle abgeschlossenen Datensätze, die noch keinen
// vollständigen Checker-Lauf haben.
func runScheduledChecks(db *gorm.DB, cfg *config.Config, atlasClient *atlas.Client,
	chemService *chem.Service, runner *tasks.Runner, log *zap.Logger) {
	var datasets []models.Dataset
	err := db.Preload("CheckerRun").
		Where("completed = ? AND training = ?", true, false).
		Find(&datasets).Error
	if err != nil {
		log.Error("Scheduled check could not load datasets", zap.Error(err))
		return
	}
	for _, dataset := range datasets {
		if dataset.CheckerRun != nil &&
			(dataset.CheckerRun.Completed || dataset.CheckerRun.Running || dataset.CheckerRun.Inserted) {
			continue
		}
		id := dataset.ID
		runner.Launch("scheduled-check", func(t *tasks.Task) (any, error) {
			chk := &checker.Checker{
				DB:              db,
				Atlas:           atlasClient,
				Chem:            chemService,
				Logger:          log,
				Progress:        t,
				StrictFlatMatch: cfg.StrictFlatMatch,
			}
			if err := chk.Run(id, true, false); err != nil {
				return nil, err
			}
			datasetsCheckedCounter.Inc()
			return gin.H{"dataset_id": id}, nil
		})
	}
}
