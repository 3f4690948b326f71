package sync

import (
	"context"

	"github.com/qazaqsoft/kaspisync/internal/amocrm"
	"github.com/qazaqsoft/kaspisync/internal/kaspi"
)

// UpstreamClient is the read-only marketplace surface the pipeline consumes.
type UpstreamClient interface {
	ForEachOrder(ctx context.Context, filter kaspi.Filter, fn func(kaspi.Order) error) error
	ForEachOrderEntry(ctx context.Context, orderID string, fn func(kaspi.OrderEntry) error) error
	ProductOf(ctx context.Context, entryID string) (kaspi.Product, error)
}

// DownstreamClient is the CRM surface the pipeline writes to.
type DownstreamClient interface {
	FindContactByQuery(ctx context.Context, query string) (*amocrm.Contact, error)
	CreateContacts(ctx context.Context, contacts []amocrm.ContactPayload) ([]amocrm.Contact, error)
	UpdateContact(ctx context.Context, id int64, payload amocrm.ContactPayload) error
	CreateLeads(ctx context.Context, leads []amocrm.LeadPayload) ([]amocrm.Lead, error)
	UpdateLead(ctx context.Context, id int64, payload amocrm.LeadPayload) error
	DeleteLead(ctx context.Context, id int64) error
	FindCatalogElement(ctx context.Context, catalogID int64, query string) (*amocrm.CatalogElement, error)
	CreateCatalogElement(ctx context.Context, catalogID int64, name string, fields []amocrm.CustomField) (amocrm.CatalogElement, error)
	LinkLeadToCatalogElement(ctx context.Context, leadID, catalogID, elementID int64, quantity int) error
	AddNote(ctx context.Context, leadID int64, text string) error
}

// StatusResolver maps an upstream status to an active downstream stage id.
// Zero means no active mapping.
type StatusResolver interface {
	ActiveStatusID(ctx context.Context, kaspiStatus string, pipelineID int64) (int64, error)
}
