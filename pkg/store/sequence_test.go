package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceOpsRecordsFrame(t *testing.T) {
	received := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ops, err := SequenceOps("12345", received)
	require.NoError(t, err)
	require.Len(t, ops, 2)

	assert.Equal(t, ModeTask, ops[0].Mode)
	assert.Equal(t, ModeSingle, ops[1].Mode)
	assert.Equal(t, upsertSequenceSQL, ops[1].SQL)
	assert.Equal(t, []any{12345, received}, ops[1].Args)
}

func TestSequenceOpsRejectsGarbage(t *testing.T) {
	_, err := SequenceOps("not-a-number", time.Now())
	assert.Error(t, err)
}

func TestSequenceGapCheckToleratesSmallSkips(t *testing.T) {
	tests := []struct {
		name   string
		stored int
		next   string
	}{
		{"consecutive", 100, "101"},
		{"skip within limit", 100, "105"},
		{"wraparound", 9999998, "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConn{results: map[string][][]any{
				selectSequenceSQL: {{tt.stored}},
			}}
			ops, err := SequenceOps(tt.next, time.Now())
			require.NoError(t, err)
			assert.NoError(t, ops[0].Task(context.Background(), conn))
		})
	}
}

func TestSequenceGapCheckWithEmptyTable(t *testing.T) {
	conn := &fakeConn{}
	ops, err := SequenceOps("1", time.Now())
	require.NoError(t, err)
	assert.NoError(t, ops[0].Task(context.Background(), conn))
}

func TestLastRetrieved(t *testing.T) {
	acquired := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	conn := &fakeConn{results: map[string][][]any{
		"SELECT time_acquired FROM last_received_sequence;": {{acquired}},
	}}

	got, err := LastRetrieved(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, acquired, got)

	empty := &fakeConn{}
	got, err = LastRetrieved(context.Background(), empty)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
