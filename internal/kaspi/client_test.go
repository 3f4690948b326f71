package kaspi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/qazaqsoft/kaspisync/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler, pageSize int) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(config.KaspiConfig{
		BaseURL:  srv.URL,
		APIToken: "token-123",
		PageSize: pageSize,
	}, zap.NewNop())
	return client, srv
}

func TestForEachOrderPaginates(t *testing.T) {
	var authHeaders []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeaders = append(authHeaders, r.Header.Get("X-Auth-Token"))
		require.Equal(t, "/orders", r.URL.Path)
		require.Equal(t, "1000", r.URL.Query().Get("filter[orders][creationDate][$ge]"))
		require.Equal(t, "NEW", r.URL.Query().Get("filter[orders][state]"))

		page := r.URL.Query().Get("page[number]")
		var body string
		switch page {
		case "0":
			body = `{"data":[
				{"id":"1","attributes":{"code":"100000001","creationDate":1100,"totalPrice":5000,"state":"NEW","customer":{"cellPhone":"87001234567","firstName":"Aigerim","lastName":"S"}}},
				{"id":"2","attributes":{"code":"100000002","creationDate":1200,"totalPrice":7000,"state":"NEW","cellPhone":"7001112233","firstName":"Dias"}}
			]}`
		case "1":
			body = `{"data":[
				{"id":"3","attributes":{"code":"100000003","creationDate":1300,"totalPrice":900,"state":"NEW"}}
			]}`
		default:
			t.Fatalf("unexpected page %s", page)
		}
		w.Header().Set("Content-Type", "application/vnd.api+json")
		fmt.Fprint(w, body)
	})

	client, _ := newTestClient(t, handler, 2)

	var orders []Order
	err := client.ForEachOrder(context.Background(), Filter{CreatedFrom: 1000, State: "NEW"}, func(o Order) error {
		orders = append(orders, o)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, orders, 3)

	// Nested customer wins over the top-level legacy fields.
	require.Equal(t, "87001234567", orders[0].Phone)
	require.Equal(t, "Aigerim", orders[0].FirstName)
	// Legacy top-level fields fill in when the customer object is absent.
	require.Equal(t, "7001112233", orders[1].Phone)
	require.Equal(t, "Dias", orders[1].FirstName)
	require.EqualValues(t, 1300, orders[2].CreationMS)

	// Short second page ends pagination after two requests.
	require.Len(t, authHeaders, 2)
	for _, h := range authHeaders {
		require.Equal(t, "token-123", h)
	}
}

func TestForEachOrderCallbackErrorAborts(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"1","attributes":{"code":"A"}},{"id":"2","attributes":{"code":"B"}}]}`)
	})
	client, _ := newTestClient(t, handler, 100)

	wantErr := fmt.Errorf("stop here")
	var seen int
	err := client.ForEachOrder(context.Background(), Filter{}, func(Order) error {
		seen++
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 1, seen)
}

func TestForEachOrderHTTPError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"errors":[{"title":"bad token"}]}`)
	})
	client, _ := newTestClient(t, handler, 100)

	err := client.ForEachOrder(context.Background(), Filter{}, func(Order) error { return nil })
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Contains(t, apiErr.Body, "bad token")
}

func TestForEachOrderEntryFallbacks(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders/55/entries", r.URL.Path)
		fmt.Fprint(w, `{"data":[
			{"id":"e1","attributes":{"quantity":2,"productName":"Чайник","productCode":"SKU-1","basePrice":4500}},
			{"id":"e2","attributes":{"name":"Ложка","code":"SKU-2","totalPrice":300}},
			{"id":"e3","attributes":{}}
		]}`)
	})
	client, _ := newTestClient(t, handler, 100)

	var entries []OrderEntry
	err := client.ForEachOrderEntry(context.Background(), "55", func(e OrderEntry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, OrderEntry{ID: "e1", Title: "Чайник", SKU: "SKU-1", Quantity: 2, UnitPrice: 4500}, entries[0])
	// name/code/totalPrice are the legacy fallbacks.
	require.Equal(t, OrderEntry{ID: "e2", Title: "Ложка", SKU: "SKU-2", Quantity: 1, UnitPrice: 300}, entries[1])
	// A bare entry still gets quantity 1 and needs a product lookup.
	require.Equal(t, 1, entries[2].Quantity)
	require.False(t, entries[2].HasInlineAttributes())
}

func TestProductOf(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders/entries/e3/product", r.URL.Path)
		fmt.Fprint(w, `{"data":{"id":"p1","attributes":{"name":"Кастрюля","code":"SKU-3","price":12000}}}`)
	})
	client, _ := newTestClient(t, handler, 100)

	product, err := client.ProductOf(context.Background(), "e3")
	require.NoError(t, err)
	require.Equal(t, Product{Title: "Кастрюля", SKU: "SKU-3", Price: 12000}, product)
}

func TestProductOfDefaults(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":{"id":"p2","attributes":{}}}`)
	})
	client, _ := newTestClient(t, handler, 100)

	product, err := client.ProductOf(context.Background(), "e9")
	require.NoError(t, err)
	require.Equal(t, "Товар", product.Title)
	require.Equal(t, "Товар", product.SKU)
}

func TestFormatAddress(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"formatted wins", `{"formattedAddress":"г. Алматы, ул. Абая 10","town":"Алматы"}`, "г. Алматы, ул. Абая 10"},
		{"structured join", `{"town":"Алматы","streetName":"Абая","streetNumber":"10"}`, "Алматы, Абая, 10"},
		{"raw scalar", `"ул. Сатпаева 22"`, "ул. Сатпаева 22"},
		{"empty", ``, ""},
		{"null", `null`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, FormatAddress(json.RawMessage(tc.raw)))
		})
	}
}
