// Package places provides a typed client for the Places Web Service API:
// text search, place details, and photo resolution.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listings-cli/internal/resilience"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// ErrMissingPhotoReference is returned when a photo request carries no photo
// reference. It is a caller error, never retried.
var ErrMissingPhotoReference = errors.New("places: missing photo reference")

// Client performs Places API operations.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error)
	Details(ctx context.Context, req DetailsRequest) (*DetailsResponse, error)
	Photo(ctx context.Context, req PhotoRequest) (string, error)
}

// TextSearchRequest describes a paginated text search anchored at a location.
type TextSearchRequest struct {
	Query     string
	Lat       float64
	Lng       float64
	RadiusM   int
	Language  string
	PageToken string
}

// TextSearchResponse is the response from a text search page.
type TextSearchResponse struct {
	Results       []SearchResult `json:"results"`
	NextPageToken string         `json:"next_page_token"`
	Status        string         `json:"status"`
}

// SearchResult is one text search hit.
type SearchResult struct {
	PlaceID          string `json:"place_id"`
	Name             string `json:"name"`
	FormattedAddress string `json:"formatted_address"`
}

// DetailsRequest describes a place details lookup.
type DetailsRequest struct {
	PlaceID  string
	Fields   []string
	Language string
}

// DetailsResponse is the response from a place details lookup.
type DetailsResponse struct {
	Result PlaceDetail `json:"result"`
	Status string      `json:"status"`
}

// PlaceDetail is the detail bundle for one place.
type PlaceDetail struct {
	Website              string        `json:"website"`
	FormattedPhoneNumber string        `json:"formatted_phone_number"`
	Rating               float64       `json:"rating"`
	UserRatingsTotal     int           `json:"user_ratings_total"`
	Reviews              []Review      `json:"reviews"`
	OpeningHours         *OpeningHours `json:"opening_hours"`
	Photos               []Photo       `json:"photos"`
}

// Review is one raw review as returned by the API.
type Review struct {
	AuthorName              string  `json:"author_name"`
	AuthorURL               string  `json:"author_url"`
	Language                string  `json:"language"`
	OriginalLanguage        string  `json:"original_language"`
	ProfilePhotoURL         string  `json:"profile_photo_url"`
	Rating                  float64 `json:"rating"`
	RelativeTimeDescription string  `json:"relative_time_description"`
	Text                    string  `json:"text"`
	Time                    int64   `json:"time"`
	Translated              bool    `json:"translated"`
}

// OpeningHours holds the weekday hours text list.
type OpeningHours struct {
	WeekdayText []string `json:"weekday_text"`
}

// Photo is one photo reference attached to a place.
type Photo struct {
	PhotoReference string `json:"photo_reference"`
	Height         int    `json:"height"`
	Width          int    `json:"width"`
}

// PhotoRequest describes a photo resolution request.
type PhotoRequest struct {
	PhotoReference string
	MaxWidth       int
	MaxHeight      int
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	// noRedirect is used for photo requests, which resolve via a redirect
	// to the media URL that we must not follow.
	noRedirect *http.Client
}

// NewClient creates a Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	c.noRedirect = &http.Client{
		Timeout: c.http.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error) {
	params := url.Values{
		"query":    {req.Query},
		"location": {fmt.Sprintf("%f,%f", req.Lat, req.Lng)},
		"radius":   {strconv.Itoa(req.RadiusM)},
	}
	if req.Language != "" {
		params.Set("language", req.Language)
	}
	if req.PageToken != "" {
		params.Set("pagetoken", req.PageToken)
	}

	var result TextSearchResponse
	if err := c.getJSON(ctx, "/textsearch/json", params, &result); err != nil {
		return nil, err
	}
	if err := checkStatus(result.Status); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) Details(ctx context.Context, req DetailsRequest) (*DetailsResponse, error) {
	params := url.Values{
		"place_id": {req.PlaceID},
	}
	if len(req.Fields) > 0 {
		params.Set("fields", strings.Join(req.Fields, ","))
	}
	if req.Language != "" {
		params.Set("language", req.Language)
	}

	var result DetailsResponse
	if err := c.getJSON(ctx, "/details/json", params, &result); err != nil {
		return nil, err
	}
	if err := checkStatus(result.Status); err != nil {
		return nil, err
	}
	return &result, nil
}

// Photo resolves a photo reference to a fetchable media URL. The API answers
// with a redirect to the hosted image; the Location header is the URL.
func (c *httpClient) Photo(ctx context.Context, req PhotoRequest) (string, error) {
	if req.PhotoReference == "" {
		return "", ErrMissingPhotoReference
	}

	params := url.Values{
		"photoreference": {req.PhotoReference},
		"key":            {c.apiKey},
	}
	if req.MaxWidth > 0 {
		params.Set("maxwidth", strconv.Itoa(req.MaxWidth))
	}
	if req.MaxHeight > 0 {
		params.Set("maxheight", strconv.Itoa(req.MaxHeight))
	}

	reqURL := c.baseURL + "/photo?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "places: create photo request")
	}

	resp, err := c.noRedirect.Do(httpReq)
	if err != nil {
		return "", eris.Wrap(err, "places: send photo request")
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		loc := resp.Header.Get("Location")
		if loc == "" {
			return "", eris.New("places: photo redirect without location")
		}
		return loc, nil
	case resp.StatusCode == http.StatusOK:
		// Already the media response; the request URL is the fetchable URL.
		return reqURL, nil
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return "", resilience.NewTransient(eris.Errorf("places: photo status %d", resp.StatusCode), resp.StatusCode)
	default:
		return "", eris.Errorf("places: photo status %d", resp.StatusCode)
	}
}

func (c *httpClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrapf(err, "places: create request %s", path)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "places: send request %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "places: read response %s", path)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransient(err, resp.StatusCode)
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "places: unmarshal response %s", path)
	}
	return nil
}

// checkStatus maps the API's envelope status to an error. ZERO_RESULTS is a
// valid empty response, not a failure.
func checkStatus(status string) error {
	switch status {
	case "", "OK", "ZERO_RESULTS":
		return nil
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return resilience.NewTransient(eris.Errorf("places: status %s", status), 0)
	default:
		return eris.Errorf("places: status %s", status)
	}
}
