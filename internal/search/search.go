// Package search looks up nutrition data from an Open Food Facts-compatible
// product API. It is read-only; results only inform the conversation.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

type Product struct {
	Name     string  `json:"name"`
	Brand    string  `json:"brand,omitempty"`
	Calories float64 `json:"calories"` // per 100g
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://world.openfoodfacts.org"
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type offSearchResp struct {
	Products []struct {
		ProductName string `json:"product_name"`
		Brands      string `json:"brands"`
		Nutriments  struct {
			EnergyKcal100g float64 `json:"energy-kcal_100g"`
			Proteins100g   float64 `json:"proteins_100g"`
			Carbs100g      float64 `json:"carbohydrates_100g"`
			Fat100g        float64 `json:"fat_100g"`
		} `json:"nutriments"`
	} `json:"products"`
}

func (c *Client) Search(ctx context.Context, query string) (string, error) {
	q := url.Values{}
	q.Set("search_terms", query)
	q.Set("search_simple", "1")
	q.Set("action", "process")
	q.Set("json", "1")
	q.Set("page_size", "5")
	q.Set("fields", "product_name,brands,nutriments")

	u := fmt.Sprintf("%s/cgi/search.pl?%s", strings.TrimRight(c.BaseURL, "/"), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("search: %s", msg)
	}

	var decoded offSearchResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}

	products := make([]Product, 0, len(decoded.Products))
	for _, p := range decoded.Products {
		if p.ProductName == "" {
			continue
		}
		products = append(products, Product{
			Name:     p.ProductName,
			Brand:    p.Brands,
			Calories: p.Nutriments.EnergyKcal100g,
			Protein:  p.Nutriments.Proteins100g,
			Carbs:    p.Nutriments.Carbs100g,
			Fat:      p.Nutriments.Fat100g,
		})
	}
	return Format(query, products), nil
}

// Format renders results as the plain text handed back to the model as a
// tool result.
func Format(query string, products []Product) string {
	if len(products) == 0 {
		return fmt.Sprintf("No nutrition results found for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Nutrition results for %q (per 100g):\n", query)
	for _, p := range products {
		name := p.Name
		if p.Brand != "" {
			name = fmt.Sprintf("%s (%s)", p.Name, p.Brand)
		}
		fmt.Fprintf(&b, "- %s: %.0f kcal, %.1fg protein, %.1fg carbs, %.1fg fat\n",
			name, p.Calories, p.Protein, p.Carbs, p.Fat)
	}
	return strings.TrimRight(b.String(), "\n")
}
