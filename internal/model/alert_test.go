package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupKey(t *testing.T) {
	tests := []struct {
		name  string
		alert Alert
		want  string
	}{
		{
			"full key",
			Alert{Type: AlertLatencyHigh, Integration: "piperun", Endpoint: "/deals/sync"},
			"latency_high:piperun:/deals/sync",
		},
		{
			"no endpoint",
			Alert{Type: AlertErrorRateHigh, Integration: "piperun"},
			"error_rate_high:piperun",
		},
		{
			"type only",
			Alert{Type: AlertPendingBacklog},
			"pending_backlog",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.alert.DedupKey())
		})
	}
}

func TestOperationTypeValid(t *testing.T) {
	assert.True(t, OpCreateDeal.Valid())
	assert.True(t, OpUpdateDeal.Valid())
	assert.False(t, OperationType("delete_everything").Valid())
	assert.False(t, OperationType("").Valid())
}

func TestOperationStatusValid(t *testing.T) {
	for _, s := range []OperationStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, OperationStatus("queued").Valid())
	assert.False(t, OperationStatus("").Valid())
}
