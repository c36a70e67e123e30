package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"example.com/jonoshongjog/services/relief/config"
	"example.com/jonoshongjog/services/relief/internal/models"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Index names, prefixed per environment
const (
	DonationsIndex = "donations"
	RequestsIndex  = "relief-requests"
)

var mappings = map[string]string{
	DonationsIndex: `{"mappings":{"properties":{
		"item_name":{"type":"text"},"description":{"type":"text"},"pickup_address":{"type":"text"},
		"category":{"type":"keyword"},"urgency":{"type":"keyword"},"status":{"type":"keyword"},
		"donor_id":{"type":"keyword"},"quantity":{"type":"double"},"unit":{"type":"keyword"},
		"location":{"type":"geo_point"},"created_at":{"type":"date"},"available_until":{"type":"date"}}}}`,
	RequestsIndex: `{"mappings":{"properties":{
		"item_name":{"type":"text"},"description":{"type":"text"},"delivery_address":{"type":"text"},
		"category":{"type":"keyword"},"urgency":{"type":"keyword"},"status":{"type":"keyword"},
		"requester_id":{"type":"keyword"},"quantity":{"type":"double"},"unit":{"type":"keyword"},
		"beneficiaries_count":{"type":"integer"},"location":{"type":"geo_point"},
		"created_at":{"type":"date"},"deadline":{"type":"date"}}}}`,
}

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// EnsureIndices creates the indices with their mappings when missing
func (c *ElasticClient) EnsureIndices(ctx context.Context) error {
	for name, mapping := range mappings {
		index := config.FormatIndex(c.config, name)

		res, err := esapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, c.client)
		if err != nil {
			return errors.Wrapf(err, "failed to check index %s", index)
		}
		res.Body.Close()
		if res.StatusCode == http.StatusOK {
			continue
		}

		res, err = esapi.IndicesCreateRequest{Index: index, Body: bytes.NewReader([]byte(mapping))}.Do(ctx, c.client)
		if err != nil {
			return errors.Wrapf(err, "failed to create index %s", index)
		}
		if err := checkResponse(res, "create index"); err != nil {
			return err
		}
		log.Info().Str("index", index).Msg("Elasticsearch index created")
	}
	return nil
}

// IndexDonation indexes a donation in Elasticsearch
func (c *ElasticClient) IndexDonation(ctx context.Context, donation *models.Donation) error {
	doc := map[string]interface{}{
		"id":              donation.ID.String(),
		"donor_id":        donation.DonorID.String(),
		"item_name":       donation.ItemName,
		"description":     donation.Description,
		"category":        donation.Category,
		"quantity":        donation.Quantity,
		"unit":            donation.Unit,
		"urgency":         donation.Urgency,
		"pickup_address":  donation.PickupAddress,
		"status":          donation.Status,
		"available_until": donation.AvailableUntil,
		"created_at":      donation.CreatedAt,
	}
	if donation.PickupCoordinates != nil {
		doc["location"] = geoPoint(donation.PickupCoordinates)
	}
	return c.index(ctx, DonationsIndex, donation.ID, doc)
}

// IndexRequest indexes a relief request in Elasticsearch
func (c *ElasticClient) IndexRequest(ctx context.Context, request *models.ReliefRequest) error {
	doc := map[string]interface{}{
		"id":                  request.ID.String(),
		"requester_id":        request.RequesterID.String(),
		"item_name":           request.ItemName,
		"description":         request.Description,
		"category":            request.Category,
		"quantity":            request.Quantity,
		"unit":                request.Unit,
		"urgency":             request.Urgency,
		"beneficiaries_count": request.BeneficiariesCount,
		"delivery_address":    request.DeliveryAddress,
		"status":              request.Status,
		"deadline":            request.Deadline,
		"created_at":          request.CreatedAt,
	}
	if request.DeliveryCoordinates != nil {
		doc["location"] = geoPoint(request.DeliveryCoordinates)
	}
	return c.index(ctx, RequestsIndex, request.ID, doc)
}

func geoPoint(p *models.Point) map[string]float64 {
	return map[string]float64{"lat": p.Lat, "lon": p.Lng}
}

func (c *ElasticClient) index(ctx context.Context, name string, id uuid.UUID, doc map[string]interface{}) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal document")
	}

	req := esapi.IndexRequest{
		Index:      config.FormatIndex(c.config, name),
		DocumentID: id.String(),
		Body:       bytes.NewReader(docJSON),
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	if err := checkResponse(res, "index"); err != nil {
		return err
	}

	log.Debug().Str("index", name).Str("id", id.String()).Msg("Document indexed")
	return nil
}

// SearchDonations runs a full-text query and returns donation ids by relevance
func (c *ElasticClient) SearchDonations(ctx context.Context, query string, limit int) ([]uuid.UUID, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	body := map[string]interface{}{
		"size":    limit,
		"_source": false,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":     query,
						"fields":    []string{"item_name^3", "description", "category^2", "pickup_address"},
						"fuzziness": "AUTO",
					},
				},
				"must_not": map[string]interface{}{
					"terms": map[string]interface{}{
						"status": []models.DonationStatus{models.DonationCancelled, models.DonationRejected},
					},
				},
			},
		},
	}
	queryJSON, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	req := esapi.SearchRequest{
		Index: []string{config.FormatIndex(c.config, DonationsIndex)},
		Body:  bytes.NewReader(queryJSON),
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError(res.Body, "search")
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	ids := make([]uuid.UUID, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			log.Warn().Str("id", hit.ID).Msg("Skipping search hit with invalid id")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Ping checks the cluster is reachable
func (c *ElasticClient) Ping(ctx context.Context) error {
	res, err := esapi.PingRequest{}.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to ping Elasticsearch")
	}
	return checkResponse(res, "ping")
}

func checkResponse(res *esapi.Response, op string) error {
	defer res.Body.Close()
	if res.IsError() {
		return responseError(res.Body, op)
	}
	return nil
}

func responseError(body io.Reader, op string) error {
	var e map[string]interface{}
	if err := json.NewDecoder(body).Decode(&e); err != nil {
		return errors.Wrapf(err, "failed to parse Elasticsearch %s error response", op)
	}
	return errors.Errorf("Elasticsearch %s error: %v", op, e)
}
