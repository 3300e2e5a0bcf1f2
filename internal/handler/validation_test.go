package handler

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func validCreateIntentRequest() createIntentRequest {
	return createIntentRequest{
		PayableKind: "post",
		PayableID:   uuid.NewString(),
		Amount:      1500,
		Currency:    "USD",
		PayerID:     uuid.NewString(),
		Type:        "one_time",
	}
}

func fieldNames(errs []FieldError) []string {
	names := make([]string, 0, len(errs))
	for _, e := range errs {
		names = append(names, e.Field)
	}
	return names
}

func TestCreateIntentRequest_Validate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*createIntentRequest)
		wantFields []string
	}{
		{
			name:   "valid",
			mutate: func(*createIntentRequest) {},
		},
		{
			name:   "valid with payee",
			mutate: func(r *createIntentRequest) { r.PayeeID = uuid.NewString() },
		},
		{
			name:       "unknown payable kind",
			mutate:     func(r *createIntentRequest) { r.PayableKind = "widget" },
			wantFields: []string{"payable_kind"},
		},
		{
			name:       "zero amount",
			mutate:     func(r *createIntentRequest) { r.Amount = 0 },
			wantFields: []string{"amount"},
		},
		{
			name:       "negative amount",
			mutate:     func(r *createIntentRequest) { r.Amount = -50 },
			wantFields: []string{"amount"},
		},
		{
			name:       "unsupported currency",
			mutate:     func(r *createIntentRequest) { r.Currency = "JPY" },
			wantFields: []string{"currency"},
		},
		{
			name:       "bad payer id",
			mutate:     func(r *createIntentRequest) { r.PayerID = "not-a-uuid" },
			wantFields: []string{"payer_id"},
		},
		{
			name:       "bad payee id",
			mutate:     func(r *createIntentRequest) { r.PayeeID = "not-a-uuid" },
			wantFields: []string{"payee_id"},
		},
		{
			name:       "unknown intent type",
			mutate:     func(r *createIntentRequest) { r.Type = "layaway" },
			wantFields: []string{"type"},
		},
		{
			name: "multiple failures reported together",
			mutate: func(r *createIntentRequest) {
				r.Amount = 0
				r.Currency = "XXX"
			},
			wantFields: []string{"amount", "currency"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validCreateIntentRequest()
			tc.mutate(&req)

			errs := req.Validate()
			if len(tc.wantFields) == 0 {
				assert.Empty(t, errs)
				return
			}
			assert.ElementsMatch(t, tc.wantFields, fieldNames(errs))
		})
	}
}

func TestRefundRequest_Validate(t *testing.T) {
	assert.Empty(t, refundRequest{Amount: 500}.Validate())
	assert.NotEmpty(t, refundRequest{Amount: 0}.Validate())
	assert.NotEmpty(t, refundRequest{Amount: -1}.Validate())
}
