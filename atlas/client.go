package atlas

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// API ist das Interface des Atlas-Clients, das Checker und Inserter
// konsumieren. Lese-Endpunkte melden "nicht gefunden" als nil-Ergebnis,
// Transportfehler als error; abgelehnte Schreibzugriffe als *CallError.
type API interface {
	Authenticate() error
	GetCompound(npaid int) (*Compound, error)
	GetCompoundMolblock(npaid int) (string, error)
	SearchInchikey(inchikey string) ([]CompoundMatch, error)
	SearchName(name string) ([]CompoundMatch, error)
	GetReference(doi string) (*Reference, error)
	GetJournals() ([]string, error)
	SearchTaxa(genus string) ([]TaxonMatch, error)
	GetRanks() ([]string, error)
	GetRankTaxa(rank string) ([]RankTaxon, error)
	GetTaxon(name, rank string) (*TaxonMatch, error)

	InsertReference(ref ReferenceIn) error
	UpdateReference(doi string, ref ReferenceUpdate) error
	AddJournal(title string) error
	InsertCompound(compound CompoundIn) error
	UpdateCompoundStructure(npaid int, smiles string) error
	UpdateCompoundName(npaid int, name string) error
	UpdateCompoundOrigin(npaid int, origin IsolationIn) error
	InsertTaxon(taxon TaxonIn) (int, error)
}

// CallError ist eine vom Atlas abgelehnte API-Anfrage (kein Transportfehler).
type CallError struct {
	StatusCode int
	Body       string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("atlas api returned status %d: %s", e.StatusCode, e.Body)
}

// Client ist der HTTP-Client für die NP Atlas API.
type Client struct {
	BaseURL string
	APIKey  string
	Logger  *zap.Logger

	auth  Credentials
	token string
}

// Credentials für den Passwort-Grant der schreibenden Endpunkte.
type Credentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

// NewClient erstellt einen neuen Atlas-Client.
func NewClient(baseURL, apiKey string, auth Credentials, logger *zap.Logger) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey, auth: auth, Logger: logger}
}

func (c *Client) prefixURL(endpoint string) string {
	return fmt.Sprintf("%s/%s", c.BaseURL, endpoint)
}

// getJSON führt einen GET-Request aus und dekodiert die Antwort.
// Bei 404 wird (false, nil) zurückgegeben.
func (c *Client) getJSON(endpoint string, out any) (bool, error) {
	req, err := http.NewRequest(http.MethodGet, c.prefixURL(endpoint), nil)
	if err != nil {
		return false, err
	}
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	c.Logger.Debug("Atlas GET", zap.String("endpoint", endpoint))

	resp, err := httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("atlas request %s failed: status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

// GetCompound holt eine Verbindung anhand ihrer NPAID. Gibt nil zurück, wenn
// die NPAID nicht existiert.
func (c *Client) GetCompound(npaid int) (*Compound, error) {
	var compound Compound
	found, err := c.getJSON(fmt.Sprintf("compound/%d", npaid), &compound)
	if err != nil || !found {
		return nil, err
	}
	return &compound, nil
}

// GetCompoundMolblock holt den Molblock einer Verbindung.
func (c *Client) GetCompoundMolblock(npaid int) (string, error) {
	var resp struct {
		Molblock string `json:"molblock"`
	}
	found, err := c.getJSON(fmt.Sprintf("compound/%d/molblock", npaid), &resp)
	if err != nil || !found {
		return "", err
	}
	return resp.Molblock, nil
}

// SearchInchikey sucht Verbindungen per InChIKey. Ein flacher Key (nur das
// Connectivity-Segment) liefert Flat-Matches, ein voller Key Full-Matches.
func (c *Client) SearchInchikey(inchikey string) ([]CompoundMatch, error) {
	endpoint := fmt.Sprintf(
		"compounds/structureSearch?structure=%s&type=inchikey&method=sim",
		url.QueryEscape(inchikey),
	)
	req, err := http.NewRequest(http.MethodPost, c.prefixURL(endpoint), nil)
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	c.Logger.Debug("Atlas structure search", zap.String("inchikey", inchikey))

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("atlas structure search failed: status %d", resp.StatusCode)
	}
	var matches []CompoundMatch
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// SearchName sucht Verbindungen per Name.
func (c *Client) SearchName(name string) ([]CompoundMatch, error) {
	var matches []CompoundMatch
	endpoint := fmt.Sprintf("compounds/?name=%s&limit=10", url.QueryEscape(name))
	if _, err := c.getJSON(endpoint, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// GetReference holt eine Referenz anhand ihrer DOI. Gibt nil zurück, wenn die
// DOI im Atlas unbekannt ist (404).
func (c *Client) GetReference(doi string) (*Reference, error) {
	var ref Reference
	endpoint := fmt.Sprintf("reference/doi?doi=%s", url.QueryEscape(doi))
	found, err := c.getJSON(endpoint, &ref)
	if err != nil || !found {
		return nil, err
	}
	return &ref, nil
}

// GetJournals holt die Titel aller im Atlas bekannten Journals.
func (c *Client) GetJournals() ([]string, error) {
	var resp []struct {
		Title string `json:"title"`
	}
	if _, err := c.getJSON("reference/journals", &resp); err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(resp))
	for _, journal := range resp {
		titles = append(titles, journal.Title)
	}
	return titles, nil
}

// SearchTaxa sucht Taxa auf Genus-Ebene.
func (c *Client) SearchTaxa(genus string) ([]TaxonMatch, error) {
	var matches []TaxonMatch
	endpoint := fmt.Sprintf("taxon/search?name=%s&rank=genus", url.QueryEscape(genus))
	if _, err := c.getJSON(endpoint, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// GetRanks holt alle taxonomischen Ränge.
func (c *Client) GetRanks() ([]string, error) {
	var ranks []string
	if _, err := c.getJSON("taxon/ranks", &ranks); err != nil {
		return nil, err
	}
	return ranks, nil
}

// GetRankTaxa holt alle Taxa eines Rangs.
func (c *Client) GetRankTaxa(rank string) ([]RankTaxon, error) {
	var taxa []RankTaxon
	endpoint := fmt.Sprintf("taxon/?rank=%s", url.QueryEscape(rank))
	if _, err := c.getJSON(endpoint, &taxa); err != nil {
		return nil, err
	}
	return taxa, nil
}

// GetTaxon holt ein einzelnes Taxon per Name und Rang.
func (c *Client) GetTaxon(name, rank string) (*TaxonMatch, error) {
	var taxon TaxonMatch
	endpoint := fmt.Sprintf("taxon/get?name=%s&rank=%s", url.QueryEscape(name), url.QueryEscape(rank))
	found, err := c.getJSON(endpoint, &taxon)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("taxon %q (%s) not found in atlas", name, rank)
	}
	return &taxon, nil
}
