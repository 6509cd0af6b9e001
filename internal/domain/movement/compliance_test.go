package movement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pharmastock/internal/core/apperror"
	"pharmastock/internal/core/id"
)

func TestCheckBatch(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	lateYesterday := today.Add(-time.Minute)

	tests := []struct {
		name    string
		policy  Policy
		batch   Batch
		wantErr string
	}{
		{"released no expiry", DefaultPolicy(), Batch{Status: BatchReleased}, ""},
		{"quarantine", DefaultPolicy(), Batch{Status: BatchQuarantine}, apperror.CodeBatchQuarantine},
		{"rejected", DefaultPolicy(), Batch{Status: BatchRejected}, apperror.CodeBatchQuarantine},
		{"expires today", DefaultPolicy(), Batch{Status: BatchReleased, ExpiresAt: &today}, ""},
		{"expired yesterday", DefaultPolicy(), Batch{Status: BatchReleased, ExpiresAt: &yesterday}, apperror.CodeBatchExpired},
		{"expired one minute before midnight", DefaultPolicy(), Batch{Status: BatchReleased, ExpiresAt: &lateYesterday}, apperror.CodeBatchExpired},
		{"quarantine wins over expiry", DefaultPolicy(), Batch{Status: BatchQuarantine, ExpiresAt: &yesterday}, apperror.CodeBatchQuarantine},
		{"quarantine not enforced", Policy{EnforceExpiry: true}, Batch{Status: BatchQuarantine}, ""},
		{"expiry not enforced", Policy{EnforceQuarantine: true}, Batch{Status: BatchReleased, ExpiresAt: &yesterday}, ""},
		{"min shelf life", Policy{EnforceExpiry: true, MinShelfLifeDays: 30}, Batch{Status: BatchReleased, ExpiresAt: ptr(today.AddDate(0, 0, 10))}, apperror.CodeBatchExpired},
		{"custom allowed statuses", Policy{EnforceQuarantine: true, AllowedStatuses: []BatchStatus{BatchReleased, BatchQuarantine}}, Batch{Status: BatchQuarantine}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.batch
			b.ID = id.New()
			b.BatchNumber = "LOT-2025001"

			err := CheckBatch(tt.policy, &b, now)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperror.HasCode(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestCheckBatchUsesUTCDay(t *testing.T) {
	// 01:00 on June 16 in UTC+3 is still June 15 in UTC.
	at := time.Date(2025, 6, 16, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))
	expires := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	err := CheckBatch(DefaultPolicy(), &Batch{Status: BatchReleased, ExpiresAt: &expires}, at)
	assert.NoError(t, err)
}

func TestQuarantineMeta(t *testing.T) {
	b := Batch{ID: id.New(), BatchNumber: "B-7", Status: BatchQuarantine}
	err := CheckBatch(DefaultPolicy(), &b, time.Now())

	appErr, ok := apperror.AsAppError(err)
	if assert.True(t, ok) {
		assert.Equal(t, b.ID, appErr.Details["batchId"])
		assert.Equal(t, "B-7", appErr.Details["batchNumber"])
		assert.Equal(t, "QUARANTINE", appErr.Details["status"])
		assert.Equal(t, 409, appErr.HTTPStatus)
	}
}
