package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/qazaqsoft/kaspisync/internal/amocrm"
	"github.com/qazaqsoft/kaspisync/internal/kaspi"
)

type fakeUpstream struct {
	orders   []kaspi.Order
	entries  map[string][]kaspi.OrderEntry
	products map[string]kaspi.Product

	productCalls int
}

func (f *fakeUpstream) ForEachOrder(_ context.Context, _ kaspi.Filter, fn func(kaspi.Order) error) error {
	for _, order := range f.orders {
		if err := fn(order); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeUpstream) ForEachOrderEntry(_ context.Context, orderID string, fn func(kaspi.OrderEntry) error) error {
	for _, entry := range f.entries[orderID] {
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeUpstream) ProductOf(_ context.Context, entryID string) (kaspi.Product, error) {
	f.productCalls++
	product, ok := f.products[entryID]
	if !ok {
		return kaspi.Product{}, fmt.Errorf("no product for entry %s", entryID)
	}
	return product, nil
}

type linkCall struct {
	LeadID    int64
	ElementID int64
	Quantity  int
}

// fakeDownstream records every CRM mutation and can be told to fail
// specific operations.
type fakeDownstream struct {
	mu sync.Mutex

	contactsByQuery map[string]*amocrm.Contact
	elementsByQuery map[string]*amocrm.CatalogElement

	nextContactID int64
	nextLeadID    int64
	nextElementID int64

	failCreateLeads  error
	failUpdateLead   error
	failLinkElements error

	createdContacts []amocrm.ContactPayload
	updatedContacts []int64
	createdLeads    []amocrm.LeadPayload
	leadUpdates     map[int64][]amocrm.LeadPayload
	deletedLeads    []int64
	links           []linkCall
	notes           map[int64][]string
	createdElements []string
}

func newFakeDownstream() *fakeDownstream {
	return &fakeDownstream{
		contactsByQuery: map[string]*amocrm.Contact{},
		elementsByQuery: map[string]*amocrm.CatalogElement{},
		nextContactID:   300,
		nextLeadID:      9000,
		nextElementID:   70,
		leadUpdates:     map[int64][]amocrm.LeadPayload{},
		notes:           map[int64][]string{},
	}
}

func (f *fakeDownstream) FindContactByQuery(_ context.Context, query string) (*amocrm.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contactsByQuery[query], nil
}

func (f *fakeDownstream) CreateContacts(_ context.Context, contacts []amocrm.ContactPayload) ([]amocrm.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var created []amocrm.Contact
	for _, payload := range contacts {
		f.nextContactID++
		contact := amocrm.Contact{ID: f.nextContactID}
		for _, field := range payload.CustomFields {
			if field.FieldCode == "PHONE" && len(field.Values) > 0 {
				if phone, ok := field.Values[0].Value.(string); ok {
					f.contactsByQuery[phone] = &contact
				}
			}
		}
		f.createdContacts = append(f.createdContacts, payload)
		created = append(created, contact)
	}
	return created, nil
}

func (f *fakeDownstream) UpdateContact(_ context.Context, id int64, _ amocrm.ContactPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedContacts = append(f.updatedContacts, id)
	return nil
}

func (f *fakeDownstream) CreateLeads(_ context.Context, leads []amocrm.LeadPayload) ([]amocrm.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateLeads != nil {
		return nil, f.failCreateLeads
	}

	var created []amocrm.Lead
	for _, payload := range leads {
		f.nextLeadID++
		f.createdLeads = append(f.createdLeads, payload)
		created = append(created, amocrm.Lead{ID: f.nextLeadID})
	}
	return created, nil
}

func (f *fakeDownstream) UpdateLead(_ context.Context, id int64, payload amocrm.LeadPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateLead != nil {
		return f.failUpdateLead
	}
	f.leadUpdates[id] = append(f.leadUpdates[id], payload)
	return nil
}

func (f *fakeDownstream) DeleteLead(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedLeads = append(f.deletedLeads, id)
	return nil
}

func (f *fakeDownstream) FindCatalogElement(_ context.Context, _ int64, query string) (*amocrm.CatalogElement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elementsByQuery[query], nil
}

func (f *fakeDownstream) CreateCatalogElement(_ context.Context, _ int64, name string, fields []amocrm.CustomField) (amocrm.CatalogElement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextElementID++
	element := amocrm.CatalogElement{ID: f.nextElementID, Name: name}
	f.createdElements = append(f.createdElements, name)
	for _, field := range fields {
		if field.FieldCode == "SKU" && len(field.Values) > 0 {
			if sku, ok := field.Values[0].Value.(string); ok {
				f.elementsByQuery[sku] = &element
			}
		}
	}
	f.elementsByQuery[name] = &element
	return element, nil
}

func (f *fakeDownstream) LinkLeadToCatalogElement(_ context.Context, leadID, _, elementID int64, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLinkElements != nil {
		return f.failLinkElements
	}
	f.links = append(f.links, linkCall{LeadID: leadID, ElementID: elementID, Quantity: quantity})
	return nil
}

func (f *fakeDownstream) AddNote(_ context.Context, leadID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[leadID] = append(f.notes[leadID], text)
	return nil
}

type fakeStatusResolver struct {
	byStatus map[string]int64
}

func (f *fakeStatusResolver) ActiveStatusID(_ context.Context, kaspiStatus string, _ int64) (int64, error) {
	return f.byStatus[kaspiStatus], nil
}
