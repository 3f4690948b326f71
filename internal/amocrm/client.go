package amocrm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/qazaqsoft/kaspisync/internal/clock"
	"github.com/qazaqsoft/kaspisync/internal/config"
	"github.com/qazaqsoft/kaspisync/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Client talks to the amoCRM v4 API. Every request throttles through the
// shared interval limiter, then authenticates with a fresh access token.
type Client struct {
	baseURL string
	limiter *ratelimit.Interval
	tokens  *TokenManager
	http    *http.Client
	log     *zap.Logger
}

type Params struct {
	fx.In

	Clock  clock.Clock
	Config config.Config
	Tokens *TokenManager
	Log    *zap.Logger
}

func New(p Params) *Client {
	limiter := ratelimit.NewInterval(p.Clock, p.Config.Amo.RequestsPerSecond)
	return newClient("https://"+p.Config.Amo.Subdomain+".amocrm.ru", limiter, p.Tokens, p.Log)
}

func newClient(baseURL string, limiter *ratelimit.Interval, tokens *TokenManager, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		limiter: limiter,
		tokens:  tokens,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log.Named("amocrm.client"),
	}
}

var Module = fx.Module("amocrm.client",
	fx.Provide(NewTokenManager),
	fx.Provide(New),
)

func (c *Client) FindContactByQuery(ctx context.Context, query string) (*Contact, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", "1")

	body, err := c.do(ctx, http.MethodGet, "/api/v4/contacts", q, nil)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}

	var doc struct {
		Embedded struct {
			Contacts []Contact `json:"contacts"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("amocrm: decode contacts: %w", err)
	}
	if len(doc.Embedded.Contacts) == 0 {
		return nil, nil
	}
	return &doc.Embedded.Contacts[0], nil
}

func (c *Client) CreateContacts(ctx context.Context, contacts []ContactPayload) ([]Contact, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/v4/contacts", nil, contacts)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Embedded struct {
			Contacts []Contact `json:"contacts"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("amocrm: decode created contacts: %w", err)
	}
	return doc.Embedded.Contacts, nil
}

func (c *Client) UpdateContact(ctx context.Context, id int64, payload ContactPayload) error {
	payload.ID = id
	_, err := c.do(ctx, http.MethodPatch, "/api/v4/contacts", nil, []ContactPayload{payload})
	return err
}

func (c *Client) CreateLeads(ctx context.Context, leads []LeadPayload) ([]Lead, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/v4/leads", nil, leads)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Embedded struct {
			Leads []Lead `json:"leads"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("amocrm: decode created leads: %w", err)
	}
	return doc.Embedded.Leads, nil
}

func (c *Client) UpdateLead(ctx context.Context, id int64, payload LeadPayload) error {
	payload.ID = id
	_, err := c.do(ctx, http.MethodPatch, "/api/v4/leads", nil, []LeadPayload{payload})
	return err
}

func (c *Client) DeleteLead(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v4/leads/"+strconv.FormatInt(id, 10), nil, nil)
	return err
}

func (c *Client) FindCatalogElement(ctx context.Context, catalogID int64, query string) (*CatalogElement, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", "1")

	path := fmt.Sprintf("/api/v4/catalogs/%d/elements", catalogID)
	body, err := c.do(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}

	var doc struct {
		Embedded struct {
			Elements []CatalogElement `json:"elements"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("amocrm: decode catalog elements: %w", err)
	}
	if len(doc.Embedded.Elements) == 0 {
		return nil, nil
	}
	return &doc.Embedded.Elements[0], nil
}

func (c *Client) CreateCatalogElement(ctx context.Context, catalogID int64, name string, fields []CustomField) (CatalogElement, error) {
	payload := []map[string]any{{
		"name":                 name,
		"custom_fields_values": fields,
	}}

	path := fmt.Sprintf("/api/v4/catalogs/%d/elements", catalogID)
	body, err := c.do(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return CatalogElement{}, err
	}

	var doc struct {
		Embedded struct {
			Elements []CatalogElement `json:"elements"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return CatalogElement{}, fmt.Errorf("amocrm: decode created element: %w", err)
	}
	if len(doc.Embedded.Elements) == 0 {
		return CatalogElement{}, fmt.Errorf("amocrm: create element returned no elements")
	}
	return doc.Embedded.Elements[0], nil
}

func (c *Client) LinkLeadToCatalogElement(ctx context.Context, leadID, catalogID, elementID int64, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}
	payload := []map[string]any{{
		"to_entity_id":   elementID,
		"to_entity_type": "catalog_elements",
		"metadata": map[string]any{
			"quantity":   quantity,
			"catalog_id": catalogID,
		},
	}}
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v4/leads/%d/link", leadID), nil, payload)
	return err
}

func (c *Client) AddNote(ctx context.Context, leadID int64, text string) error {
	payload := []map[string]any{{
		"note_type": "common",
		"params":    map[string]any{"text": text},
	}}
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v4/leads/%d/notes", leadID), nil, payload)
	return err
}

// ListPipelines returns all pipelines with their stages, both sorted by
// their CRM sort order. Pages via the _links.next cursor.
func (c *Client) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	var result []Pipeline

	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("limit", "50")
		q.Set("with", "leads_statuses")

		body, err := c.do(ctx, http.MethodGet, "/api/v4/leads/pipelines", q, nil)
		if err != nil {
			return nil, err
		}
		if len(body) == 0 {
			break
		}

		var doc struct {
			Embedded struct {
				Pipelines []struct {
					ID       int64  `json:"id"`
					Name     string `json:"name"`
					Sort     int    `json:"sort"`
					Color    string `json:"color"`
					Embedded struct {
						Statuses []PipelineStatus `json:"statuses"`
					} `json:"_embedded"`
				} `json:"pipelines"`
			} `json:"_embedded"`
			Links struct {
				Next *struct {
					Href string `json:"href"`
				} `json:"next"`
			} `json:"_links"`
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("amocrm: decode pipelines: %w", err)
		}

		for _, p := range doc.Embedded.Pipelines {
			result = append(result, Pipeline{
				ID:       p.ID,
				Name:     p.Name,
				Sort:     p.Sort,
				Color:    p.Color,
				Statuses: p.Embedded.Statuses,
			})
		}

		if doc.Links.Next == nil || doc.Links.Next.Href == "" {
			break
		}
	}

	sortPipelines(result)
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	access, err := c.tokens.EnsureAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("amocrm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("amocrm read body: %w", err)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
