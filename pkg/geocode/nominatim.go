package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"companioncare/pkg/logger"
	"companioncare/pkg/models"
)

const nominatimBase = "https://nominatim.openstreetmap.org"

// Nominatim is a Geocoder backed by the OpenStreetMap Nominatim API.
type Nominatim struct {
	base   string
	client *http.Client
	log    logger.ILogger
}

func NewNominatim(log logger.ILogger) *Nominatim {
	return &Nominatim{
		base:   nominatimBase,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (n *Nominatim) Forward(ctx context.Context, address string) (models.LatLng, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	var results []nominatimResult
	if err := n.get(ctx, n.base+"/search?"+q.Encode(), &results); err != nil {
		return models.LatLng{}, err
	}
	if len(results) == 0 {
		return models.LatLng{}, ErrNotFound
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return models.LatLng{}, fmt.Errorf("geocode: parse latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return models.LatLng{}, fmt.Errorf("geocode: parse longitude: %w", err)
	}
	return models.LatLng{Latitude: lat, Longitude: lon}, nil
}

func (n *Nominatim) Reverse(ctx context.Context, point models.LatLng) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(point.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(point.Longitude, 'f', -1, 64))
	q.Set("format", "json")

	var result nominatimResult
	if err := n.get(ctx, n.base+"/reverse?"+q.Encode(), &result); err != nil {
		return "", err
	}
	if result.DisplayName == "" {
		return "", ErrNotFound
	}
	return result.DisplayName, nil
}

func (n *Nominatim) get(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("geocode: build request: %w", err)
	}
	req.Header.Set("User-Agent", "companioncare/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("geocode: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("geocode: decode response: %w", err)
	}
	return nil
}
