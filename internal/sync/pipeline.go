package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/qazaqsoft/kaspisync/internal/amocrm"
	"github.com/qazaqsoft/kaspisync/internal/clock"
	"github.com/qazaqsoft/kaspisync/internal/config"
	"github.com/qazaqsoft/kaspisync/internal/kaspi"
	"github.com/qazaqsoft/kaspisync/internal/observability/metrics"
	orderdomain "github.com/qazaqsoft/kaspisync/internal/order/domain"
	"github.com/qazaqsoft/kaspisync/internal/settings"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Report summarizes one pipeline run.
type Report struct {
	Fetched   int
	Committed int
	Skipped   int
	Failed    int
}

// Pipeline pulls new upstream orders and creates downstream contacts,
// leads, and catalog links for each one, exactly once per order code.
type Pipeline struct {
	upstream   UpstreamClient
	downstream DownstreamClient
	store      orderdomain.ReservationStore
	settings   settings.Store
	clock      clock.Clock
	cfg        config.Config
	log        *zap.Logger
}

type PipelineParams struct {
	fx.In

	Upstream   UpstreamClient
	Downstream DownstreamClient
	Store      orderdomain.ReservationStore
	Settings   settings.Store
	Clock      clock.Clock
	Config     config.Config
	Log        *zap.Logger
}

func NewPipeline(p PipelineParams) *Pipeline {
	return &Pipeline{
		upstream:   p.Upstream,
		downstream: p.Downstream,
		store:      p.Store,
		settings:   p.Settings,
		clock:      p.Clock,
		cfg:        p.Config,
		log:        p.Log.Named("sync.pipeline"),
	}
}

// Run processes one creation window. The watermark advances to the newest
// committed creation timestamp, and only when at least one order committed,
// so a fully failed batch is replayed on the next tick.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	watermark, err := p.settings.GetInt64(ctx, settings.KeyLastCreationMS, 0)
	if err != nil {
		return Report{}, fmt.Errorf("load watermark: %w", err)
	}

	now := p.clock.Now()
	from := now.Add(-p.cfg.Sync.MaxLookback).UnixMilli()
	if watermark > from {
		from = watermark
	}

	filter := kaspi.Filter{
		CreatedFrom: from,
		CreatedTo:   now.UnixMilli(),
		State:       p.cfg.Sync.OrderState,
	}
	p.log.Info("sync run started",
		zap.Int64("from_ms", filter.CreatedFrom),
		zap.Int64("to_ms", filter.CreatedTo),
		zap.String("state", filter.State),
	)

	report := Report{}
	candidate := watermark
	cache := newProductCache()

	err = p.upstream.ForEachOrder(ctx, filter, func(order kaspi.Order) error {
		report.Fetched++
		if order.Code == "" {
			p.log.Warn("order without code skipped", zap.String("kaspi_order_id", order.ID))
			report.Skipped++
			return nil
		}

		switch p.processOrder(ctx, order, cache) {
		case orderCommitted:
			report.Committed++
			if order.CreationMS > candidate {
				candidate = order.CreationMS
			}
		case orderSkipped:
			report.Skipped++
		case orderFailed:
			report.Failed++
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("list orders: %w", err)
	}

	if report.Committed > 0 && candidate > watermark {
		if err := p.settings.SetInt64(ctx, settings.KeyLastCreationMS, candidate); err != nil {
			return report, fmt.Errorf("persist watermark: %w", err)
		}
	}

	p.log.Info("sync run finished",
		zap.Int("fetched", report.Fetched),
		zap.Int("committed", report.Committed),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

type orderOutcome int

const (
	orderCommitted orderOutcome = iota
	orderSkipped
	orderFailed
)

// processOrder runs one order end to end. Any failure after reservation
// compensates (delete partial lead, release the claim) and leaves the order
// retryable.
func (p *Pipeline) processOrder(ctx context.Context, order kaspi.Order, cache *productCache) orderOutcome {
	res, err := p.store.Reserve(ctx, order.Code, parseOrderID(order.ID), order.TotalPrice)
	if err != nil {
		p.log.Error("reserve failed", zap.String("order_code", order.Code), zap.Error(err))
		metrics.Scheduler().IncOrderFailures(1)
		return orderFailed
	}
	if !res.Claimed {
		return orderSkipped
	}

	var leadID int64
	err = func() error {
		contactID, err := p.resolveContact(ctx, order)
		if err != nil {
			return err
		}

		leadID, err = p.createLead(ctx, order, contactID)
		if err != nil {
			return err
		}

		if p.cfg.Amo.CatalogID > 0 {
			lines, err := relinkEntries(ctx, p.upstream, p.downstream, p.cfg.Amo.CatalogID, leadID, order.ID, cache)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				p.log.Info("order has no entries", zap.String("order_code", order.Code))
			} else if err := p.downstream.AddNote(ctx, leadID, formatLineNote(lines)); err != nil {
				return err
			}
		}
		return nil
	}()
	if err != nil {
		p.log.Error("order sync failed",
			zap.String("order_code", order.Code),
			zap.Int64("lead_id", leadID),
			zap.Error(err),
		)
		metrics.Scheduler().IncOrderFailures(1)
		p.compensate(ctx, order.Code, res.Token, leadID)
		return orderFailed
	}

	if err := p.store.Commit(ctx, order.Code, leadID, order.TotalPrice, order.State); err != nil {
		p.log.Error("commit failed", zap.String("order_code", order.Code), zap.Error(err))
		metrics.Scheduler().IncOrderFailures(1)
		p.compensate(ctx, order.Code, res.Token, leadID)
		return orderFailed
	}

	metrics.Scheduler().IncOrdersSynced(1)
	p.log.Info("order synced",
		zap.String("order_code", order.Code),
		zap.Int64("lead_id", leadID),
		zap.Int64("price", order.TotalPrice),
	)
	return orderCommitted
}

func (p *Pipeline) compensate(ctx context.Context, code, token string, leadID int64) {
	if leadID > 0 {
		if err := p.downstream.DeleteLead(ctx, leadID); err != nil {
			p.log.Warn("compensating lead delete failed",
				zap.String("order_code", code),
				zap.Int64("lead_id", leadID),
				zap.Error(err),
			)
		}
	}
	if err := p.store.Release(ctx, code, token); err != nil {
		p.log.Error("release failed", zap.String("order_code", code), zap.Error(err))
	}
}

// resolveContact finds a contact by normalized phone or creates one. A
// found contact gets its stored address refreshed when it drifted.
func (p *Pipeline) resolveContact(ctx context.Context, order kaspi.Order) (int64, error) {
	phone := ""
	if order.Phone != "" {
		phone = NormalizePhone(order.Phone)
	}

	if phone != "" {
		found, err := p.downstream.FindContactByQuery(ctx, phone)
		if err != nil {
			return 0, fmt.Errorf("find contact: %w", err)
		}
		if found != nil {
			p.refreshContactAddress(ctx, found, order.Address)
			return found.ID, nil
		}
	}

	first := order.FirstName
	if first == "" {
		first = "Kaspi"
	}
	last := order.LastName
	if last == "" {
		last = "Customer"
	}

	payload := amocrm.ContactPayload{
		FirstName:         first,
		LastName:          last,
		ResponsibleUserID: p.cfg.Amo.ResponsibleUserID,
		Embedded:          &amocrm.ContactEmbedded{Tags: []amocrm.Tag{{Name: "Kaspi"}}},
	}
	if phone != "" {
		payload.CustomFields = append(payload.CustomFields, amocrm.FieldByCode(p.contactPhoneField(), phone))
	}
	if order.Address != "" && p.cfg.Amo.ContactAddressField > 0 {
		payload.CustomFields = append(payload.CustomFields, amocrm.FieldByID(p.cfg.Amo.ContactAddressField, order.Address))
	}

	created, err := p.downstream.CreateContacts(ctx, []amocrm.ContactPayload{payload})
	if err != nil {
		return 0, fmt.Errorf("create contact: %w", err)
	}
	if len(created) == 0 {
		return 0, fmt.Errorf("create contact: empty response")
	}
	return created[0].ID, nil
}

func (p *Pipeline) contactPhoneField() string {
	if f := p.cfg.Amo.ContactPhoneField; f != "" {
		return f
	}
	return "PHONE"
}

// Best effort: a stale contact address never blocks the order.
func (p *Pipeline) refreshContactAddress(ctx context.Context, contact *amocrm.Contact, address string) {
	fieldID := p.cfg.Amo.ContactAddressField
	if fieldID <= 0 || address == "" || contact.FieldValue(fieldID) == address {
		return
	}

	err := p.downstream.UpdateContact(ctx, contact.ID, amocrm.ContactPayload{
		CustomFields: []amocrm.CustomField{amocrm.FieldByID(fieldID, address)},
	})
	if err != nil {
		p.log.Warn("contact address refresh failed",
			zap.Int64("contact_id", contact.ID),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) createLead(ctx context.Context, order kaspi.Order, contactID int64) (int64, error) {
	payload := amocrm.LeadPayload{
		Name:              "Kaspi Order " + order.Code,
		Price:             order.TotalPrice,
		PipelineID:        p.cfg.Amo.PipelineID,
		StatusID:          p.cfg.Amo.StatusID,
		ResponsibleUserID: p.cfg.Amo.ResponsibleUserID,
		Embedded: &amocrm.LeadEmbedded{
			Contacts: []amocrm.EntityRef{},
			Tags:     []amocrm.Tag{{Name: "Kaspi"}, {Name: "Marketplace"}},
		},
	}
	if contactID > 0 {
		payload.Embedded.Contacts = append(payload.Embedded.Contacts, amocrm.EntityRef{ID: contactID})
	}
	if p.cfg.Amo.OrderCodeFieldID > 0 {
		payload.CustomFields = append(payload.CustomFields, amocrm.FieldByID(p.cfg.Amo.OrderCodeFieldID, order.Code))
	}
	if p.cfg.Amo.AddressFieldID > 0 && order.Address != "" {
		payload.CustomFields = append(payload.CustomFields, amocrm.FieldByID(p.cfg.Amo.AddressFieldID, order.Address))
	}
	if p.cfg.Amo.OrderDateFieldID > 0 && order.CreationMS > 0 {
		orderDate := time.UnixMilli(order.CreationMS).In(time.Local).Format(time.RFC3339)
		payload.CustomFields = append(payload.CustomFields, amocrm.FieldByID(p.cfg.Amo.OrderDateFieldID, orderDate))
	}

	leads, err := p.downstream.CreateLeads(ctx, []amocrm.LeadPayload{payload})
	if err != nil {
		return 0, fmt.Errorf("create lead: %w", err)
	}
	if len(leads) == 0 || leads[0].ID <= 0 {
		return 0, fmt.Errorf("create lead: empty response")
	}
	return leads[0].ID, nil
}

type lineItem struct {
	SKU      string
	Quantity int
	Price    int64
}

// relinkEntries resolves every order entry to a catalog element and links
// it with the current quantity. Find-or-create plus re-link is idempotent,
// so the reconciler shares it.
func relinkEntries(ctx context.Context, upstream UpstreamClient, downstream DownstreamClient, catalogID, leadID int64, orderID string, cache *productCache) ([]lineItem, error) {
	var lines []lineItem
	err := upstream.ForEachOrderEntry(ctx, orderID, func(entry kaspi.OrderEntry) error {
		title, sku, price := entry.Title, entry.SKU, entry.UnitPrice
		if !entry.HasInlineAttributes() {
			product, err := cache.get(ctx, upstream, entry.ID)
			if err != nil {
				return fmt.Errorf("product of entry %s: %w", entry.ID, err)
			}
			title, sku = product.Title, product.SKU
			if price == 0 {
				price = product.Price
			}
		}

		query := sku
		if query == "" {
			query = title
		}
		element, err := downstream.FindCatalogElement(ctx, catalogID, query)
		if err != nil {
			return fmt.Errorf("find catalog element: %w", err)
		}
		if element == nil {
			var fields []amocrm.CustomField
			if sku != "" {
				fields = append(fields, amocrm.FieldByCode("SKU", sku))
			}
			if price > 0 {
				fields = append(fields, amocrm.FieldByCode("PRICE", price))
			}
			created, err := downstream.CreateCatalogElement(ctx, catalogID, title, fields)
			if err != nil {
				return fmt.Errorf("create catalog element: %w", err)
			}
			element = &created
		}

		if err := downstream.LinkLeadToCatalogElement(ctx, leadID, catalogID, element.ID, entry.Quantity); err != nil {
			return fmt.Errorf("link catalog element: %w", err)
		}

		lines = append(lines, lineItem{SKU: sku, Quantity: entry.Quantity, Price: price})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func formatLineNote(lines []lineItem) string {
	var b strings.Builder
	b.WriteString("Позиции заказа:\nSKU | Qty | Price\n")
	for _, line := range lines {
		fmt.Fprintf(&b, "%s | %d | %d\n", line.SKU, line.Quantity, line.Price)
	}
	return b.String()
}

// productCache memoizes per-entry product lookups within one run.
type productCache struct {
	byEntry map[string]kaspi.Product
}

func newProductCache() *productCache {
	return &productCache{byEntry: make(map[string]kaspi.Product)}
}

func (c *productCache) get(ctx context.Context, upstream UpstreamClient, entryID string) (kaspi.Product, error) {
	if product, ok := c.byEntry[entryID]; ok {
		return product, nil
	}
	product, err := upstream.ProductOf(ctx, entryID)
	if err != nil {
		return kaspi.Product{}, err
	}
	c.byEntry[entryID] = product
	return product, nil
}

func parseOrderID(raw string) int64 {
	var id int64
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0
		}
		id = id*10 + int64(r-'0')
	}
	return id
}
