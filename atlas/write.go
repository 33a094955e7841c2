package atlas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Authenticate holt ein Bearer-Token per Passwort-Grant. Wird vor jedem
// Insert-Lauf aufgerufen; das Token gilt für den gesamten Lauf.
func (c *Client) Authenticate() error {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.auth.Username)
	form.Set("password", c.auth.Password)
	form.Set("client_id", c.auth.ClientID)
	form.Set("client_secret", c.auth.ClientSecret)

	req, err := http.NewRequest(http.MethodPost, c.prefixURL("token"), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("atlas authentication failed: status %d: %s", resp.StatusCode, string(body))
	}
	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return err
	}
	c.token = token.AccessToken
	c.Logger.Info("Authenticated against the Atlas API")
	return nil
}

// postJSON führt einen authentifizierten Schreibzugriff aus. Eine Ablehnung
// durch den Atlas wird als *CallError gemeldet, damit der Aufrufer sie von
// Transportfehlern unterscheiden kann.
func (c *Client) postJSON(method, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.prefixURL(endpoint), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	c.Logger.Debug("Atlas write", zap.String("method", method), zap.String("endpoint", endpoint))

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &CallError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return err
		}
	}
	return nil
}

// InsertReference legt eine neue Referenz im Atlas an.
func (c *Client) InsertReference(ref ReferenceIn) error {
	return c.postJSON(http.MethodPost, "reference/", ref, nil)
}

// UpdateReference aktualisiert eine bestehende Referenz.
func (c *Client) UpdateReference(doi string, ref ReferenceUpdate) error {
	endpoint := fmt.Sprintf("reference/doi?doi=%s", url.QueryEscape(doi))
	return c.postJSON(http.MethodPut, endpoint, ref, nil)
}

// AddJournal registriert ein neues Journal im Atlas.
func (c *Client) AddJournal(title string) error {
	payload := map[string]string{"title": title}
	return c.postJSON(http.MethodPost, "reference/addJournal", payload, nil)
}

// InsertCompound legt eine neue Verbindung im Atlas an.
func (c *Client) InsertCompound(compound CompoundIn) error {
	return c.postJSON(http.MethodPost, "compound/", compound, nil)
}

// UpdateCompoundStructure aktualisiert die Struktur einer Verbindung.
func (c *Client) UpdateCompoundStructure(npaid int, smiles string) error {
	payload := map[string]string{"smiles": smiles}
	return c.postJSON(http.MethodPut, fmt.Sprintf("compound/%d/structure", npaid), payload, nil)
}

// UpdateCompoundName aktualisiert den Namen einer Verbindung.
func (c *Client) UpdateCompoundName(npaid int, name string) error {
	payload := map[string]string{"name": name}
	return c.postJSON(http.MethodPut, fmt.Sprintf("compound/%d/name", npaid), payload, nil)
}

// UpdateCompoundOrigin aktualisiert den Ursprungsorganismus einer Verbindung.
func (c *Client) UpdateCompoundOrigin(npaid int, origin IsolationIn) error {
	return c.postJSON(http.MethodPut, fmt.Sprintf("compound/%d/origin", npaid), origin, nil)
}

// InsertTaxon legt ein neues Taxon an und gibt dessen Atlas-ID zurück.
func (c *Client) InsertTaxon(taxon TaxonIn) (int, error) {
	var resp struct {
		ID int `json:"id"`
	}
	if err := c.postJSON(http.MethodPost, "taxon/", taxon, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}
