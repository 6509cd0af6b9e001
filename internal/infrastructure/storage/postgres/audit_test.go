package postgres

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmastock/internal/core/apperror"
)

func TestPayloadCodecRoundTripsLargePayloads(t *testing.T) {
	c, err := newPayloadCodec(64)
	require.NoError(t, err)

	small := AuditEntry{Payload: []byte(`{"a":1}`)}
	c.pack(&small)
	assert.Equal(t, CompressionNone, small.CompressionAlgo)
	assert.Nil(t, small.PayloadCompressed)

	big := []byte(`{"note":"` + string(bytes.Repeat([]byte("x"), 4096)) + `"}`)
	e := AuditEntry{Payload: append([]byte(nil), big...)}
	c.pack(&e)
	assert.Equal(t, CompressionZstd, e.CompressionAlgo)
	assert.Nil(t, e.Payload)
	assert.Less(t, len(e.PayloadCompressed), len(big))

	require.NoError(t, c.unpack(&e))
	assert.Equal(t, big, []byte(e.Payload))
}

func TestAuditKindForError(t *testing.T) {
	assert.Equal(t, AuditMovementBlockedQuarantine, AuditKindForError(apperror.NewBatchQuarantine("b", "n", "QUARANTINE")))
	assert.Equal(t, AuditMovementBlockedExpired, AuditKindForError(apperror.NewBatchExpired("b", "n", time.Now())))
	assert.Equal(t, AuditMovementBlockedStock, AuditKindForError(apperror.NewInsufficientStock("l", "p", decimal.NewFromInt(2), decimal.Zero)))
	assert.Equal(t, AuditMovementBlockedRule, AuditKindForError(apperror.NewRuleViolation("r", "")))
	assert.Equal(t, AuditKind(""), AuditKindForError(apperror.NewValidation("bad")))
	assert.Equal(t, AuditKind(""), AuditKindForError(errors.New("boom")))
}
