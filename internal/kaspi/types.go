package kaspi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Order is the flattened read-only view of an upstream marketplace order.
// Field fallbacks between the nested customer object and the legacy
// top-level attributes are resolved at ingestion, so callers never touch
// the wire shape.
type Order struct {
	ID         string
	Code       string
	CreationMS int64
	TotalPrice int64
	State      string
	FirstName  string
	LastName   string
	Phone      string
	Address    string
}

type OrderEntry struct {
	ID        string
	Title     string
	SKU       string
	Quantity  int
	UnitPrice int64
}

// HasInlineAttributes reports whether the entry carried enough product
// detail inline, or whether a per-entry product lookup is needed.
func (e OrderEntry) HasInlineAttributes() bool {
	return e.Title != "" && e.SKU != ""
}

type Product struct {
	Title string
	SKU   string
	Price int64
}

const defaultProductTitle = "Товар"

type resource struct {
	ID         string          `json:"id"`
	Attributes json.RawMessage `json:"attributes"`
}

type listDocument struct {
	Data []resource `json:"data"`
}

type singleDocument struct {
	Data resource `json:"data"`
}

type customerAttrs struct {
	CellPhone string `json:"cellPhone"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type orderAttrs struct {
	Code            string          `json:"code"`
	CreationDate    int64           `json:"creationDate"`
	TotalPrice      int64           `json:"totalPrice"`
	State           string          `json:"state"`
	Customer        customerAttrs   `json:"customer"`
	CellPhone       string          `json:"cellPhone"`
	FirstName       string          `json:"firstName"`
	LastName        string          `json:"lastName"`
	DeliveryAddress json.RawMessage `json:"deliveryAddress"`
}

type entryAttrs struct {
	Quantity    int    `json:"quantity"`
	ProductName string `json:"productName"`
	Name        string `json:"name"`
	ProductCode string `json:"productCode"`
	Code        string `json:"code"`
	BasePrice   int64  `json:"basePrice"`
	TotalPrice  int64  `json:"totalPrice"`
}

type productAttrs struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Code  string `json:"code"`
	SKU   string `json:"sku"`
	Price int64  `json:"price"`
}

func orderFromResource(res resource) (Order, error) {
	var attrs orderAttrs
	if len(res.Attributes) > 0 {
		if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
			return Order{}, fmt.Errorf("order %s attributes: %w", res.ID, err)
		}
	}

	order := Order{
		ID:         res.ID,
		Code:       attrs.Code,
		CreationMS: attrs.CreationDate,
		TotalPrice: attrs.TotalPrice,
		State:      attrs.State,
		FirstName:  firstNonEmpty(attrs.Customer.FirstName, attrs.FirstName),
		LastName:   firstNonEmpty(attrs.Customer.LastName, attrs.LastName),
		Phone:      firstNonEmpty(attrs.Customer.CellPhone, attrs.CellPhone),
		Address:    FormatAddress(attrs.DeliveryAddress),
	}
	return order, nil
}

func entryFromResource(res resource) (OrderEntry, error) {
	var attrs entryAttrs
	if len(res.Attributes) > 0 {
		if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
			return OrderEntry{}, fmt.Errorf("entry %s attributes: %w", res.ID, err)
		}
	}

	entry := OrderEntry{
		ID:        res.ID,
		Quantity:  attrs.Quantity,
		Title:     firstNonEmpty(attrs.ProductName, attrs.Name),
		UnitPrice: attrs.BasePrice,
	}
	if entry.Quantity <= 0 {
		entry.Quantity = 1
	}
	if entry.UnitPrice == 0 {
		entry.UnitPrice = attrs.TotalPrice
	}
	entry.SKU = firstNonEmpty(attrs.ProductCode, attrs.Code, entry.Title)
	return entry, nil
}

func productFromResource(res resource) (Product, error) {
	var attrs productAttrs
	if len(res.Attributes) > 0 {
		if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
			return Product{}, fmt.Errorf("product %s attributes: %w", res.ID, err)
		}
	}

	product := Product{
		Title: firstNonEmpty(attrs.Name, attrs.Title, defaultProductTitle),
		Price: attrs.Price,
	}
	product.SKU = firstNonEmpty(attrs.Code, attrs.SKU, product.Title)
	return product, nil
}

// FormatAddress renders an upstream delivery address into one display
// string. Structured objects are joined field by field; anything
// unrecognized falls back to the raw scalar text.
func FormatAddress(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var structured map[string]any
	if err := json.Unmarshal(raw, &structured); err == nil {
		if formatted, ok := structured["formattedAddress"].(string); ok && strings.TrimSpace(formatted) != "" {
			return strings.TrimSpace(formatted)
		}
		parts := make([]string, 0, len(structured))
		for _, key := range addressKeyOrder(structured) {
			if s, ok := structured[key].(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		return strings.Join(parts, ", ")
	}

	var scalar string
	if err := json.Unmarshal(raw, &scalar); err == nil {
		return strings.TrimSpace(scalar)
	}
	return strings.TrimSpace(string(raw))
}

// Known fields first, remaining string fields in stable alphabetical order.
func addressKeyOrder(structured map[string]any) []string {
	known := []string{"town", "district", "streetName", "streetNumber", "building", "apartment"}
	seen := make(map[string]bool, len(known))
	for _, key := range known {
		seen[key] = true
	}

	var rest []string
	for key := range structured {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(known, rest...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
