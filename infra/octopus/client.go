// Package octopus fetches Agile half-hourly unit rates from the Octopus
// Energy public API.
package octopus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/tariff"
	"github.com/kilianp07/energysched/infra/logger"
)

// DefaultBaseURL is the public Octopus Energy API root.
const DefaultBaseURL = "https://api.octopus.energy"

// DefaultProduct is the Agile product code whose rates are fetched.
const DefaultProduct = "AGILE-FLEX-22-11-25"

// maxPages bounds how many result pages one Fetch follows.
const maxPages = 10

// Regions lists the valid electricity region codes. I and O are not used.
var Regions = []string{"A", "B", "C", "D", "E", "F", "G", "H", "J", "K", "L", "M", "N", "P"}

// ValidRegion reports whether code is a known region letter.
func ValidRegion(code string) bool {
	for _, r := range Regions {
		if r == code {
			return true
		}
	}
	return false
}

// Config configures the Agile client.
type Config struct {
	BaseURL string        `json:"base_url"`
	Product string        `json:"product"`
	Timeout time.Duration `json:"timeout"`
}

// Client implements device.PriceProvider for the Agile tariff.
type Client struct {
	baseURL string
	product string
	http    *http.Client
	log     logger.Logger
	now     func() time.Time
}

var _ device.PriceProvider = (*Client)(nil)

// NewClient creates an Agile client, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Product == "" {
		cfg.Product = DefaultProduct
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		product: cfg.Product,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     logger.New("octopus"),
		now:     time.Now,
	}
}

type rate struct {
	ValueIncVAT float64 `json:"value_inc_vat"`
	ValidFrom   string  `json:"valid_from"`
	ValidTo     string  `json:"valid_to"`
}

type ratesPage struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []rate `json:"results"`
}

// URL returns the standard unit rates endpoint for region.
func (c *Client) URL(region string) string {
	return fmt.Sprintf("%s/v1/products/%s/electricity-tariffs/E-1R-%s-%s/standard-unit-rates/",
		c.baseURL, c.product, c.product, region)
}

// Fetch returns the published half-hour rates for region in £/kWh, starting
// at the current half hour. Result pages are followed until the API reports
// no further page. Records with a malformed start are skipped.
func (c *Client) Fetch(ctx context.Context, region string) ([]tariff.Slot, error) {
	if !ValidRegion(region) {
		return nil, fmt.Errorf("%q is an invalid region code (%s are valid)", region, strings.Join(Regions, ","))
	}
	from := c.now().UTC().Truncate(tariff.SlotDuration)
	next := c.URL(region) + "?" + url.Values{"period_from": {from.Format(time.RFC3339)}}.Encode()

	var out []tariff.Slot
	for pages := 0; next != ""; pages++ {
		if pages == maxPages {
			c.log.Warnf("stopping after %d pages of agile rates for region %s", maxPages, region)
			break
		}
		page, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Results {
			start, err := time.Parse(time.RFC3339, r.ValidFrom)
			if err != nil {
				c.log.Warnf("skipping rate with bad valid_from %q: %v", r.ValidFrom, err)
				continue
			}
			start = start.UTC()
			out = append(out, tariff.Slot{
				Start: start,
				End:   start.Add(tariff.SlotDuration),
				Price: r.ValueIncVAT / 100,
			})
		}
		next = page.Next
	}
	c.log.Debugf("fetched %d agile rates for region %s", len(out), region)
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, u string) (ratesPage, error) {
	var page ratesPage
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return page, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return page, fmt.Errorf("fetch agile rates: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return page, fmt.Errorf("fetch agile rates: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return page, fmt.Errorf("decode agile rates: %w", err)
	}
	return page, nil
}
