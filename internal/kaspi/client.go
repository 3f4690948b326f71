package kaspi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qazaqsoft/kaspisync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultPageSize = 100

// APIError carries the upstream HTTP status and body for diagnostics.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kaspi: http %d: %s", e.Status, e.Body)
}

// Filter bounds an order listing in upstream creation-timestamp space.
// Zero bounds are omitted from the query.
type Filter struct {
	CreatedFrom int64 // ms epoch, inclusive
	CreatedTo   int64 // ms epoch, inclusive
	State       string
}

// Client reads orders from the marketplace JSON:API. All reads paginate
// ascending and stop on an empty or short page.
type Client struct {
	baseURL  string
	token    string
	pageSize int
	http     *http.Client
	log      *zap.Logger
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

func New(p Params) *Client {
	return NewClient(p.Config.Kaspi, p.Log)
}

func NewClient(cfg config.KaspiConfig, log *zap.Logger) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.APIToken,
		pageSize: pageSize,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log.Named("kaspi.client"),
	}
}

var Module = fx.Module("kaspi.client",
	fx.Provide(New),
)

// ForEachOrder streams orders matching the filter. Returning an error from
// fn aborts the iteration and surfaces the error unchanged.
func (c *Client) ForEachOrder(ctx context.Context, filter Filter, fn func(Order) error) error {
	query := url.Values{}
	if filter.CreatedFrom > 0 {
		query.Set("filter[orders][creationDate][$ge]", strconv.FormatInt(filter.CreatedFrom, 10))
	}
	if filter.CreatedTo > 0 {
		query.Set("filter[orders][creationDate][$le]", strconv.FormatInt(filter.CreatedTo, 10))
	}
	if filter.State != "" {
		query.Set("filter[orders][state]", filter.State)
	}

	return c.forEachPage(ctx, "/orders", query, func(res resource) error {
		order, err := orderFromResource(res)
		if err != nil {
			return err
		}
		return fn(order)
	})
}

// ForEachOrderEntry streams the line entries of one order.
func (c *Client) ForEachOrderEntry(ctx context.Context, orderID string, fn func(OrderEntry) error) error {
	if orderID == "" {
		return fmt.Errorf("kaspi: empty order id")
	}

	path := "/orders/" + url.PathEscape(orderID) + "/entries"
	return c.forEachPage(ctx, path, url.Values{}, func(res resource) error {
		entry, err := entryFromResource(res)
		if err != nil {
			return err
		}
		return fn(entry)
	})
}

// ProductOf fetches the product detail behind one order entry. Used when
// the entry itself carries no inline product attributes.
func (c *Client) ProductOf(ctx context.Context, entryID string) (Product, error) {
	if entryID == "" {
		return Product{}, fmt.Errorf("kaspi: empty entry id")
	}

	body, err := c.get(ctx, "/orders/entries/"+url.PathEscape(entryID)+"/product", nil)
	if err != nil {
		return Product{}, err
	}

	var doc singleDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return Product{}, fmt.Errorf("kaspi: decode product: %w", err)
	}
	return productFromResource(doc.Data)
}

func (c *Client) forEachPage(ctx context.Context, path string, base url.Values, fn func(resource) error) error {
	for page := 0; ; page++ {
		query := url.Values{}
		for k, vs := range base {
			query[k] = vs
		}
		query.Set("page[number]", strconv.Itoa(page))
		query.Set("page[size]", strconv.Itoa(c.pageSize))

		body, err := c.get(ctx, path, query)
		if err != nil {
			return err
		}

		var doc listDocument
		if err := json.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("kaspi: decode %s page %d: %w", path, page, err)
		}
		if len(doc.Data) == 0 {
			return nil
		}
		for _, res := range doc.Data {
			if err := fn(res); err != nil {
				return err
			}
		}
		if len(doc.Data) < c.pageSize {
			return nil
		}
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("X-Auth-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kaspi request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kaspi read body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
