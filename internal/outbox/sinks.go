// internal/outbox/sinks.go
package outbox

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/zoho"
	"lead-funnel/internal/models"
	applycommission "lead-funnel/internal/workers/attribution/apply-commission"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Sink receives every dispatched event. Deliveries are at least once, so a
// sink must tolerate seeing the same idempotency key again.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev *models.AttributionEvent, raw []byte) error
}

// ==========================
// Commission
// ==========================

type CommissionApplier interface {
	ApplyEvent(ctx context.Context, ev *models.AttributionEvent) (*applycommission.Output, error)
}

type CommissionSink struct {
	engine CommissionApplier
}

func NewCommissionSink(engine CommissionApplier) *CommissionSink {
	return &CommissionSink{engine: engine}
}

func (s *CommissionSink) Name() string { return "commission" }

func (s *CommissionSink) Deliver(ctx context.Context, ev *models.AttributionEvent, _ []byte) error {
	_, err := s.engine.ApplyEvent(ctx, ev)
	return err
}

// ==========================
// SNS
// ==========================

type Publisher interface {
	PublishJSON(ctx context.Context, eventType, idempotencyKey string, body []byte) (string, error)
}

type SNSSink struct {
	publisher Publisher
}

func NewSNSSink(p Publisher) *SNSSink {
	return &SNSSink{publisher: p}
}

func (s *SNSSink) Name() string { return "sns" }

func (s *SNSSink) Deliver(ctx context.Context, ev *models.AttributionEvent, raw []byte) error {
	if _, err := s.publisher.PublishJSON(ctx, ev.Type, ev.IdempotencyKey, raw); err != nil {
		return errors.NewExternalServiceError("sns", err)
	}
	return nil
}

// ==========================
// Elasticsearch
// ==========================

// SearchSink indexes each event into the lead timeline index. The document id
// is the idempotency key, so a redelivery overwrites instead of duplicating.
type SearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewSearchSink(client *elasticsearch.Client, index string) *SearchSink {
	if index == "" {
		index = "lead-events"
	}
	return &SearchSink{client: client, index: index}
}

func (s *SearchSink) Name() string { return "elasticsearch" }

func (s *SearchSink) Deliver(ctx context.Context, ev *models.AttributionEvent, raw []byte) error {
	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: ev.IdempotencyKey,
		Body:       bytes.NewReader(raw),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return errors.NewExternalServiceError("elasticsearch", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return errors.NewExternalServiceError("elasticsearch", fmt.Errorf("index %s: %s: %s", s.index, res.Status(), body))
	}
	return nil
}

// ==========================
// Zoho CRM
// ==========================

type LeadCreator interface {
	CreateLead(ctx context.Context, lead *zoho.Lead) (string, error)
}

// CRMSink mirrors new leads into the CRM. Status changes are not forwarded.
type CRMSink struct {
	crm LeadCreator
}

func NewCRMSink(crm LeadCreator) *CRMSink {
	return &CRMSink{crm: crm}
}

func (s *CRMSink) Name() string { return "zoho" }

func (s *CRMSink) Deliver(ctx context.Context, ev *models.AttributionEvent, _ []byte) error {
	if ev.Type != models.EventLeadCreated {
		return nil
	}
	first, last := zoho.SplitName(ev.FullName)
	lead := &zoho.Lead{
		Email:     ev.Email,
		FirstName: first,
		LastName:  last,
		Phone:     ev.Phone,
		State:     ev.State,
		Source:    ev.Source,
	}
	if ev.ReferralCode != "" {
		lead.Description = "Referral code " + ev.ReferralCode
	}
	if _, err := s.crm.CreateLead(ctx, lead); err != nil {
		return errors.NewExternalServiceError("zoho", err)
	}
	return nil
}
