package amocrm

import (
	"fmt"
	"sort"
)

// APIError carries the downstream HTTP status and body for diagnostics.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("amocrm: http %d: %s", e.Status, e.Body)
}

type CustomFieldValue struct {
	Value any `json:"value"`
}

type CustomField struct {
	FieldID   int64              `json:"field_id,omitempty"`
	FieldCode string             `json:"field_code,omitempty"`
	Values    []CustomFieldValue `json:"values"`
}

func FieldByID(id int64, value any) CustomField {
	return CustomField{FieldID: id, Values: []CustomFieldValue{{Value: value}}}
}

func FieldByCode(code string, value any) CustomField {
	return CustomField{FieldCode: code, Values: []CustomFieldValue{{Value: value}}}
}

type Tag struct {
	Name string `json:"name"`
}

type EntityRef struct {
	ID int64 `json:"id"`
}

type ContactEmbedded struct {
	Tags []Tag `json:"tags,omitempty"`
}

// ContactPayload is the v4 create/update shape. A non-zero ID turns the
// payload into a PATCH target.
type ContactPayload struct {
	ID                int64            `json:"id,omitempty"`
	FirstName         string           `json:"first_name,omitempty"`
	LastName          string           `json:"last_name,omitempty"`
	ResponsibleUserID int64            `json:"responsible_user_id,omitempty"`
	CustomFields      []CustomField    `json:"custom_fields_values,omitempty"`
	Embedded          *ContactEmbedded `json:"_embedded,omitempty"`
}

type LeadEmbedded struct {
	Contacts []EntityRef `json:"contacts"`
	Tags     []Tag       `json:"tags,omitempty"`
}

type LeadPayload struct {
	ID                int64         `json:"id,omitempty"`
	Name              string        `json:"name,omitempty"`
	Price             int64         `json:"price,omitempty"`
	PipelineID        int64         `json:"pipeline_id,omitempty"`
	StatusID          int64         `json:"status_id,omitempty"`
	ResponsibleUserID int64         `json:"responsible_user_id,omitempty"`
	CustomFields      []CustomField `json:"custom_fields_values,omitempty"`
	Embedded          *LeadEmbedded `json:"_embedded,omitempty"`
}

type Contact struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	CustomFields []ContactField `json:"custom_fields_values"`
}

type ContactField struct {
	FieldID   int64              `json:"field_id"`
	FieldCode string             `json:"field_code"`
	Values    []CustomFieldValue `json:"values"`
}

// FieldValue returns the first stored value of the custom field with the
// given id, or "" when absent.
func (c Contact) FieldValue(fieldID int64) string {
	for _, f := range c.CustomFields {
		if f.FieldID == fieldID && len(f.Values) > 0 {
			if s, ok := f.Values[0].Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

type Lead struct {
	ID int64 `json:"id"`
}

type CatalogElement struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type PipelineStatus struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Sort  int    `json:"sort"`
	Color string `json:"color"`
}

type Pipeline struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	Sort     int              `json:"sort"`
	Color    string           `json:"color"`
	Statuses []PipelineStatus `json:"statuses"`
}

func sortPipelines(pipelines []Pipeline) {
	for i := range pipelines {
		statuses := pipelines[i].Statuses
		sort.Slice(statuses, func(a, b int) bool { return statuses[a].Sort < statuses[b].Sort })
	}
	sort.Slice(pipelines, func(a, b int) bool {
		if pipelines[a].Sort != pipelines[b].Sort {
			return pipelines[a].Sort < pipelines[b].Sort
		}
		return pipelines[a].ID < pipelines[b].ID
	})
}
