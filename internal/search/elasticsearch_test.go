package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"example.com/jonoshongjog/services/relief/config"
	"example.com/jonoshongjog/services/relief/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	body   string
}

func fakeCluster(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*ElasticClient, *[]recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recorded{method: r.Method, path: r.URL.Path, body: string(body)})
		mu.Unlock()
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewElasticClient(config.ElasticConfig{URL: srv.URL, Prefix: "test"})
	require.NoError(t, err)
	return client, &reqs
}

func TestIndexDonation(t *testing.T) {
	client, reqs := fakeCluster(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	donation := &models.Donation{
		Base:              models.Base{ID: uuid.New()},
		ItemName:          "Rice",
		Category:          "food",
		Quantity:          50,
		Status:            models.DonationAvailable,
		PickupCoordinates: &models.Point{Lat: 23.81, Lng: 90.41},
	}
	require.NoError(t, client.IndexDonation(context.Background(), donation))

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/test-donations/_doc/"+donation.ID.String(), req.path)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(req.body), &doc))
	assert.Equal(t, "Rice", doc["item_name"])
	assert.Equal(t, "available", doc["status"])
	assert.Equal(t, map[string]interface{}{"lat": 23.81, "lon": 90.41}, doc["location"])
}

func TestSearchDonationsKeepsOrder(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	client, reqs := fakeCluster(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hits":{"hits":[{"_id":"` + first.String() + `"},{"_id":"bogus"},{"_id":"` + second.String() + `"}]}}`))
	})

	ids, err := client.SearchDonations(context.Background(), "blanket", 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first, second}, ids)

	require.Len(t, *reqs, 1)
	assert.Equal(t, "/test-donations/_search", (*reqs)[0].path)
	assert.True(t, strings.Contains((*reqs)[0].body, `"multi_match"`))
}

func TestSearchDonationsError(t *testing.T) {
	client, _ := fakeCluster(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"parsing_exception"}}`))
	})

	_, err := client.SearchDonations(context.Background(), "x", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing_exception")
}
