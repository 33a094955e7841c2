package checker

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/NPAtlas/npatlas-curator/models"
)

var (
	doiPrefix  = regexp.MustCompile(`^(https?://)?(dx\.)?doi\.org/`)
	doiPattern = regexp.MustCompile(`^10\.\d{4,9}/[-._;()/:+A-Za-z0-9]+$`)
	yearRange  = regexp.MustCompile(`^[12][0-9]{3}$`)
)

// CleanDOI entfernt einen eventuellen URL-Präfix von einer DOI.
func CleanDOI(doi string) string {
	return doiPrefix.ReplaceAllString(strings.TrimSpace(doi), "")
}

// checkArticle führt alle Feld-Validatoren gegen den Snapshot aus. Jeder
// Validator meldet unabhängig; es gibt kein Short-Circuit.
func (c *Checker) checkArticle(article *models.CheckerArticle) error {
	c.checkDOI(article)
	if err := c.checkJournal(article); err != nil {
		return err
	}
	c.checkYear(article)
	c.checkVolumeIssue(article)
	c.checkPages(article)
	c.checkAuthors(article)
	c.checkTitle(article)
	c.checkAbstract(article)
	return nil
}

func (c *Checker) checkDOI(article *models.CheckerArticle) {
	if article.DOI == "" {
		c.addProblem(models.ProblemMissingDOI, article.ID, nil)
		return
	}
	article.DOI = CleanDOI(article.DOI)
	if !doiPattern.MatchString(article.DOI) {
		c.addProblem(models.ProblemDOI, article.ID, nil)
	}
}

// checkJournal gleicht den kuratierten Journaltitel mit der lokalen
// Autoritätstabelle ab und prüft zusätzlich gegen die Journalliste des Atlas.
func (c *Checker) checkJournal(article *models.CheckerArticle) error {
	journal, err := models.CheckJournalMatch(c.DB, article.Journal)
	if err != nil {
		return err
	}
	if journal == nil {
		c.addProblem(models.ProblemJournal, article.ID, nil)
		return nil
	}
	article.Journal = journal.Journal
	article.JournalAbbrev = journal.Abbrev

	atlasJournals, err := c.atlasJournals()
	if err != nil {
		return err
	}
	if _, ok := atlasJournals[journal.Journal]; !ok {
		c.addProblem(models.ProblemMissingJournal, article.ID, nil)
	}
	return nil
}

func (c *Checker) checkYear(article *models.CheckerArticle) {
	if !yearRange.MatchString(strconv.Itoa(article.Year)) {
		c.addProblem(models.ProblemYear, article.ID, nil)
	}
}

func (c *Checker) checkVolumeIssue(article *models.CheckerArticle) {
	if len(article.Volume) > 6 {
		c.addProblem(models.ProblemVolume, article.ID, nil)
	}
	if len(article.Issue) > 6 {
		c.addProblem(models.ProblemIssue, article.ID, nil)
	}
}

// checkPages normalisiert Gedankenstriche, expandiert verkürzte Endseiten
// (100-10 wird zu 100-110) und schreibt das Ergebnis in den Snapshot zurück.
func (c *Checker) checkPages(article *models.CheckerArticle) {
	pages := normalizeDashes(strings.TrimSpace(article.Pages))
	if pages == "" {
		return
	}
	first := rune(pages[0])
	switch {
	case unicode.IsDigit(first):
		segments := strings.Split(pages, "-")
		if len(segments) == 2 {
			segments[1] = expandPageRange(segments[0], segments[1])
		}
		for _, segment := range segments {
			if len(segment) > 6 {
				c.addProblem(models.ProblemPages, article.ID, nil)
				return
			}
		}
		article.Pages = strings.Join(segments, "-")
	case unicode.IsLetter(first):
		article.Pages = pages
	default:
		c.addProblem(models.ProblemPages, article.ID, nil)
	}
}

func (c *Checker) checkAuthors(article *models.CheckerArticle) {
	if len(article.Authors) < 6 || hasDigits(article.Authors) {
		c.addProblem(models.ProblemAuthors, article.ID, nil)
	}
}

func (c *Checker) checkTitle(article *models.CheckerArticle) {
	if len(article.Title) < 6 {
		c.addProblem(models.ProblemTitle, article.ID, nil)
	}
}

func (c *Checker) checkAbstract(article *models.CheckerArticle) {
	if article.Abstract != "" && len(article.Abstract) < 20 {
		c.addProblem(models.ProblemAbstract, article.ID, nil)
	}
}

var dashReplacer = strings.NewReplacer("–", "-", "—", "-", "‒", "-", "−", "-")

func normalizeDashes(s string) string {
	return dashReplacer.Replace(s)
}

// expandPageRange füllt eine verkürzte Endseite mit den führenden Ziffern der
// Startseite auf, sofern sie kürzer ist.
func expandPageRange(start, end string) string {
	if len(end) >= len(start) || end == "" {
		return end
	}
	return start[:len(start)-len(end)] + end
}

func hasDigits(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
