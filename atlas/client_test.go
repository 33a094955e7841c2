package atlas

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	auth := Credentials{Username: "curator", Password: "secret", ClientID: "id", ClientSecret: "cs"}
	return NewClient(server.URL, "test-key", auth, zap.NewNop())
}

func TestGetCompound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/compound/42", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		json.NewEncoder(w).Encode(Compound{NPAID: 42, Name: "Testamide a"})
	}))

	compound, err := client.GetCompound(42)
	require.NoError(t, err)
	require.NotNil(t, compound)
	assert.Equal(t, 42, compound.NPAID)
	assert.Equal(t, "Testamide a", compound.Name)
}

func TestGetCompoundNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	compound, err := client.GetCompound(999999)
	require.NoError(t, err)
	assert.Nil(t, compound)
}

func TestGetReferenceStatusHandling(t *testing.T) {
	t.Run("not found is nil without error", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/reference/doi", r.URL.Path)
			assert.Equal(t, "10.1000/xyz", r.URL.Query().Get("doi"))
			w.WriteHeader(http.StatusNotFound)
		}))
		ref, err := client.GetReference("10.1000/xyz")
		require.NoError(t, err)
		assert.Nil(t, ref)
	})

	t.Run("server error propagates", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		_, err := client.GetReference("10.1000/xyz")
		assert.Error(t, err)
	})
}

func TestSearchInchikey(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/compounds/structureSearch", r.URL.Path)
		assert.Equal(t, "KWILGNNWOVLEPO", r.URL.Query().Get("structure"))
		assert.Equal(t, "inchikey", r.URL.Query().Get("type"))
		json.NewEncoder(w).Encode([]CompoundMatch{{NPAID: 7}})
	}))

	matches, err := client.SearchInchikey("KWILGNNWOVLEPO")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 7, matches[0].NPAID)
}

func TestGetJournalsExtractsTitles(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reference/journals", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]string{
			{"title": "Journal of Natural Products"},
			{"title": "Marine Drugs"},
		})
	}))

	titles, err := client.GetJournals()
	require.NoError(t, err)
	assert.Equal(t, []string{"Journal of Natural Products", "Marine Drugs"}, titles)
}

func TestAuthenticateAndBearerToken(t *testing.T) {
	var sawAuth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "password", r.PostForm.Get("grant_type"))
			assert.Equal(t, "curator", r.PostForm.Get("username"))
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123"})
		case "/reference/":
			sawAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	require.NoError(t, client.Authenticate())
	require.NoError(t, client.InsertReference(ReferenceIn{DOI: "10.1000/xyz"}))
	assert.Equal(t, "Bearer tok-123", sawAuth)
}

func TestWriteRejectionIsCallError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte("validation failed"))
	}))

	err := client.AddJournal("Bad Journal")
	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, http.StatusUnprocessableEntity, callErr.StatusCode)
	assert.Equal(t, "validation failed", callErr.Body)
}

func TestInsertTaxonReturnsID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/taxon/", r.URL.Path)
		var payload TaxonIn
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Salinispora", payload.Name)
		json.NewEncoder(w).Encode(map[string]int{"id": 4242})
	}))

	id, err := client.InsertTaxon(TaxonIn{Name: "Salinispora", Rank: "genus"})
	require.NoError(t, err)
	assert.Equal(t, 4242, id)
}

func TestGetTaxonMissingIsError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.GetTaxon("Nonexistus", "genus")
	assert.Error(t, err)
	var callErr *CallError
	assert.False(t, errors.As(err, &callErr), "read misses are not api rejections")
}
