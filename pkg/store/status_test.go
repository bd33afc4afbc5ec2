package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironswallow/ironswallow/pkg/darwin"
)

func TestStatusOpsUpsert(t *testing.T) {
	s := New(nil)

	loc := node("Location", map[string]string{"tpl": "REDGW", "wta": "10:25", "wtd": "10:26"})
	arr := node("arr", map[string]string{"et": "10:30", "src": "Darwin", "delayed": "true"})
	dep := node("dep", map[string]string{"at": "10:31"})
	plat := node("plat", map[string]string{"platsrc": "A", "conf": "true"})
	plat.Set("$", "4")
	loc.Set("arr", arr)
	loc.Set("dep", dep)
	loc.Set("plat", plat)

	record := listNode("TS", map[string]string{"rid": "202401018000001", "ssd": "2024-01-01"}, loc)

	ops, err := s.statusOps(record)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	op := ops[0]
	assert.Equal(t, ModeBatch, op.Mode)
	assert.Equal(t, upsertStatusSQL, op.SQL)
	require.Len(t, op.Batch, 1)

	row := op.Batch[0]
	assert.Equal(t, "202401018000001", row[0])
	assert.Equal(t, "REDGW", row[1])
	assert.Equal(t, "102500      102600", row[2])

	// Estimated arrival lands on the service day anchored at wta.
	assert.Equal(t, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC), row[3])
	assert.Equal(t, time.Date(2024, 1, 1, 10, 31, 0, 0, time.UTC), row[5])

	assert.Equal(t, "Darwin", row[6])
	assert.Equal(t, "E", row[9], "estimate flagged E")
	assert.Equal(t, "A", row[11], "actual flagged A")
	assert.Equal(t, true, row[12], "arrival delayed")
	assert.Equal(t, false, row[14])

	assert.Equal(t, "4", row[15])
	assert.Equal(t, false, row[16])
	assert.Equal(t, true, row[18], "platform confirmed")
	assert.Equal(t, "A", row[19])
}

func TestStatusOpsLateReason(t *testing.T) {
	s := New(nil)
	reason := node("LateReason", map[string]string{})
	reason.Set("$", "128")
	record := listNode("TS", map[string]string{"rid": "1", "ssd": "2024-01-01"}, reason)

	ops, err := s.statusOps(record)
	require.NoError(t, err)
	require.Len(t, ops, 2)

	assert.Equal(t, updateDelayReasonSQL, ops[0].SQL)
	assert.Contains(t, string(ops[0].Args[0].([]byte)), `"code":"128"`)
	assert.Equal(t, "1", ops[0].Args[1])
}

func TestStatusAnchorFallback(t *testing.T) {
	ssd := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	wta := darwin.Clock{Seconds: 10 * 3600, Valid: true}
	wtp := darwin.Clock{Seconds: 11 * 3600, Valid: true}

	anchor := statusAnchor(ssd, []darwin.Clock{{}, wtp, wta})
	assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), anchor, "first present candidate wins")

	assert.True(t, statusAnchor(ssd, []darwin.Clock{{}, {}, {}}).IsZero())
}

func TestStatusOpsCrossesMidnight(t *testing.T) {
	s := New(nil)
	loc := node("Location", map[string]string{"tpl": "A", "wtd": "23:55"})
	dep := node("dep", map[string]string{"et": "00:05"})
	loc.Set("dep", dep)
	record := listNode("TS", map[string]string{"rid": "1", "ssd": "2024-01-01"}, loc)

	ops, err := s.statusOps(record)
	require.NoError(t, err)

	row := ops[0].Batch[0]
	assert.Equal(t, time.Date(2024, 1, 2, 0, 5, 0, 0, time.UTC), row[5],
		"estimate past midnight lands on the next day")
}
