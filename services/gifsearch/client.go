// Package gifsearch is a thin client for the Giphy search API, the external
// media-search capability behind each pipeline branch.
package gifsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianReact/services/reactor/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.gifsearch")

const defaultBaseURL = "https://api.giphy.com/v1/gifs"

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// giphySearchResponse mirrors the subset of the Giphy payload we consume.
type giphySearchResponse struct {
	Data []struct {
		Title   string `json:"title"`
		AltText string `json:"alt_text"`
		Images  struct {
			Original struct {
				URL string `json:"url"`
			} `json:"original"`
		} `json:"images"`
	} `json:"data"`
}

func NewClient() (*Client, error) {
	apiKey := os.Getenv("GIPHY_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/giphy_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the Giphy API Key from Podman Secrets")
		} else {
			slog.Error("GIPHY_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("GIPHY_API_KEY environment variable not set")
		}
	}
	baseURL := os.Getenv("GIPHY_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Giphy client", "base_url", baseURL)
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}, nil
}

// NewClientWithBase is used by tests to point the client at a stub server.
func NewClientWithBase(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Search queries Giphy for up to limit GIFs matching query at the given
// content rating. An empty result list is not an error; callers decide what
// zero candidates means for their branch.
func (c *Client) Search(ctx context.Context, query string, limit int, rating string) ([]datatypes.Candidate, error) {
	ctx, span := tracer.Start(ctx, "GiphyClient.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("gifsearch.query", query),
		attribute.Int("gifsearch.limit", limit),
	)

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("rating", rating)
	searchURL := c.baseURL + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create request to Giphy: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Giphy API call failed", "error", err)
		return nil, fmt.Errorf("Giphy API call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read response body from Giphy: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Giphy returned an error", "status_code", resp.StatusCode, "response", string(respBody))
		return nil, fmt.Errorf("Giphy failed with status %d", resp.StatusCode)
	}

	var giphyResp giphySearchResponse
	if err := json.Unmarshal(respBody, &giphyResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Failed to parse JSON response from Giphy", "error", err)
		return nil, fmt.Errorf("failed to parse Giphy response: %w", err)
	}

	candidates := make([]datatypes.Candidate, 0, len(giphyResp.Data))
	for _, d := range giphyResp.Data {
		if d.Images.Original.URL == "" {
			continue
		}
		candidates = append(candidates, datatypes.Candidate{
			Title:    d.Title,
			AltText:  d.AltText,
			MediaURL: d.Images.Original.URL,
		})
	}
	slog.Debug("Received candidates from Giphy", "count", len(candidates))
	return candidates, nil
}
