package chem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var httpClient = &http.Client{Timeout: 120 * time.Second}

// Structure bündelt die kanonischen Repräsentationen einer Verbindung.
type Structure struct {
	Name     string `json:"name,omitempty"`
	Formula  string `json:"formula"`
	Smiles   string `json:"smiles"`
	InChI    string `json:"inchi"`
	InChIKey string `json:"inchikey"`
	Molblock string `json:"molblock"`
}

// Normalizer ist der feste Vertrag der Cheminformatik-Schicht. Die Pipeline
// behandelt Strukturbereinigung als Blackbox-Utility.
type Normalizer interface {
	// NormalizeStructure cleans a SMILES and derives all canonical forms.
	// Standardization is optional because it is roughly 10x slower and
	// datasets are usually pre-standardized.
	NormalizeStructure(smiles string, standardize bool) (*Structure, error)

	// InchikeyFromSmiles derives only the InChIKey, used to detect
	// structure changes between checker runs.
	InchikeyFromSmiles(smiles string) (string, error)

	// StandardizeSmiles runs the full standardization pipe on one SMILES.
	StandardizeSmiles(smiles string) (string, error)
}

// Service ruft den externen Struktur-Service (RDKit) auf.
type Service struct {
	BaseURL string
	Logger  *zap.Logger
}

// NewService erstellt einen neuen Struktur-Service-Client.
func NewService(baseURL string, logger *zap.Logger) *Service {
	return &Service{BaseURL: baseURL, Logger: logger}
}

// NormalizeStructure cleans the structure via the remote service.
func (s *Service) NormalizeStructure(smiles string, standardize bool) (*Structure, error) {
	var structure Structure
	payload := map[string]any{"smiles": smiles, "standardize": standardize}
	if err := s.post("structure/clean", payload, &structure); err != nil {
		return nil, fmt.Errorf("structure cleanup failed: %w", err)
	}
	return &structure, nil
}

// InchikeyFromSmiles derives the InChIKey for a raw SMILES.
func (s *Service) InchikeyFromSmiles(smiles string) (string, error) {
	var resp struct {
		InChIKey string `json:"inchikey"`
	}
	if err := s.post("structure/inchikey", map[string]any{"smiles": smiles}, &resp); err != nil {
		return "", fmt.Errorf("inchikey derivation failed: %w", err)
	}
	return resp.InChIKey, nil
}

// StandardizeSmiles runs full standardization on one SMILES.
func (s *Service) StandardizeSmiles(smiles string) (string, error) {
	var resp struct {
		Smiles string `json:"smiles"`
	}
	if err := s.post("structure/standardize", map[string]any{"smiles": smiles}, &resp); err != nil {
		return "", fmt.Errorf("standardization failed: %w", err)
	}
	return resp.Smiles, nil
}

func (s *Service) post(endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s", s.BaseURL, endpoint)
	s.Logger.Debug("Calling structure service", zap.String("url", url))

	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("structure service returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
