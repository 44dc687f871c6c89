// Package queue persists mutations created while offline so they can be
// replayed against the server once connectivity returns.
package queue

import (
	"encoding/json"
	"fmt"
)

// Kind tags the mutation type of a PendingItem.
type Kind string

const (
	KindCreateIssue      Kind = "create_issue"
	KindCreateInspection Kind = "create_inspection"
	KindCreateTraining   Kind = "create_training"
	KindConfirmTraining  Kind = "confirm_training_participation"
)

// Mutation is one queued create-type action. Each implementation knows the
// endpoint it replays against and the cache collection it invalidates.
type Mutation interface {
	Kind() Kind
	Endpoint() (method, path string)
	Collection() string
	// SetAttachmentRefs merges server-assigned attachment ids into the
	// payload before the entity call.
	SetAttachmentRefs(ids []string)
}

// CreateIssue reports a safety issue observed on site.
type CreateIssue struct {
	SiteID        string   `json:"siteId"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Severity      string   `json:"severity"`
	AttachmentIDs []string `json:"attachmentIds,omitempty"`
}

func (m *CreateIssue) Kind() Kind                     { return KindCreateIssue }
func (m *CreateIssue) Endpoint() (string, string)     { return "POST", "/api/issues" }
func (m *CreateIssue) Collection() string             { return "issues" }
func (m *CreateIssue) SetAttachmentRefs(ids []string) { m.AttachmentIDs = ids }

// CreateInspection records a completed site inspection.
type CreateInspection struct {
	SiteID        string   `json:"siteId"`
	TemplateID    string   `json:"templateId"`
	Answers       []Answer `json:"answers"`
	Notes         string   `json:"notes,omitempty"`
	AttachmentIDs []string `json:"attachmentIds,omitempty"`
}

// Answer is one checklist response inside an inspection.
type Answer struct {
	QuestionID string `json:"questionId"`
	Value      string `json:"value"`
}

func (m *CreateInspection) Kind() Kind                     { return KindCreateInspection }
func (m *CreateInspection) Endpoint() (string, string)     { return "POST", "/api/inspections" }
func (m *CreateInspection) Collection() string             { return "inspections" }
func (m *CreateInspection) SetAttachmentRefs(ids []string) { m.AttachmentIDs = ids }

// CreateTraining schedules a safety training session.
type CreateTraining struct {
	SiteID        string   `json:"siteId"`
	Topic         string   `json:"topic"`
	ScheduledAt   string   `json:"scheduledAt"`
	EmployeeIDs   []string `json:"employeeIds"`
	AttachmentIDs []string `json:"attachmentIds,omitempty"`
}

func (m *CreateTraining) Kind() Kind                     { return KindCreateTraining }
func (m *CreateTraining) Endpoint() (string, string)     { return "POST", "/api/trainings" }
func (m *CreateTraining) Collection() string             { return "trainings" }
func (m *CreateTraining) SetAttachmentRefs(ids []string) { m.AttachmentIDs = ids }

// ConfirmTraining marks an employee's participation in a training, optionally
// with a photo of the signed attendance sheet.
type ConfirmTraining struct {
	TrainingID    string   `json:"trainingId"`
	EmployeeID    string   `json:"employeeId"`
	AttachmentIDs []string `json:"attachmentIds,omitempty"`
}

func (m *ConfirmTraining) Kind() Kind                 { return KindConfirmTraining }
func (m *ConfirmTraining) Endpoint() (string, string) { return "POST", "/api/trainings/confirmations" }
func (m *ConfirmTraining) Collection() string         { return "trainings" }
func (m *ConfirmTraining) SetAttachmentRefs(ids []string) { m.AttachmentIDs = ids }

// DecodeMutation rebuilds a Mutation from its persisted kind and payload.
func DecodeMutation(kind Kind, payload []byte) (Mutation, error) {
	var m Mutation
	switch kind {
	case KindCreateIssue:
		m = &CreateIssue{}
	case KindCreateInspection:
		m = &CreateInspection{}
	case KindCreateTraining:
		m = &CreateTraining{}
	case KindConfirmTraining:
		m = &ConfirmTraining{}
	default:
		return nil, fmt.Errorf("queue: unknown mutation kind %q", kind)
	}
	if err := json.Unmarshal(payload, m); err != nil {
		return nil, fmt.Errorf("queue: decode %s payload: %w", kind, err)
	}
	return m, nil
}
