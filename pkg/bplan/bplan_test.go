package bplan

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironswallow/ironswallow/pkg/store"
)

type fakeConn struct {
	mu    sync.Mutex
	execs []execCall
}

type execCall struct {
	sql  string
	args []any
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (c *fakeConn) calls() []execCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]execCall(nil), c.execs...)
}

func TestBplanDate(t *testing.T) {
	got, err := bplanDate("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = bplanDate("15-06-2024 00:00:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), got)

	// 23:59:59 is the extract's way of saying "until the end of the day".
	got, err = bplanDate("15-06-2024 23:59:59")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC), got)

	_, err = bplanDate("2024-06-15")
	assert.Error(t, err)
}

func TestIntOrNil(t *testing.T) {
	got, err := intOrNil("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = intOrNil("1760")
	require.NoError(t, err)
	assert.Equal(t, 1760, got)

	_, err = intOrNil("far")
	assert.Error(t, err)
}

func TestNetworkLinkRow(t *testing.T) {
	line := []string{
		"NWK", "A", "PADTON", "RDNGSTN", "FL   ", "Fast Line",
		"01-01-2020 00:00:00", "15-06-2024 23:59:59",
		"U", "D", "35", "Y", "N", "N", "W", "B", "DC", "5", "",
	}

	row, err := networkLinkRow(line)
	require.NoError(t, err)
	assert.Equal(t, []any{
		"PADTON", "RDNGSTN", "FL", "Fast Line",
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC),
		"U", "D", 35, true, false, false, "W", "B", "DC", "5",
	}, row)
}

func TestPlatformRow(t *testing.T) {
	line := []string{"PLT", "A", "PADTON", "1  ", "01-01-2020 00:00:00", "", "210", "DC", "Y", "N"}

	row, err := platformRow(line)
	require.NoError(t, err)
	assert.Equal(t, []any{
		"PADTON", "1",
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), nil,
		210, "DC", true, false,
	}, row)

	line[3] = "   "
	row, err = platformRow(line)
	require.NoError(t, err)
	assert.Nil(t, row[1], "blank platform stored as NULL")
}

func TestImportSubmitsBatches(t *testing.T) {
	dir := t.TempDir()
	lines := []string{
		"PIF\tsomething\tignored",
		strings.Join([]string{
			"NWK", "A", "PADTON", "RDNGSTN", "ML", "Main Line",
			"01-01-2020 00:00:00", "", "U", "D", "35", "Y", "N", "N", "W", "B", "DC", "5", "",
		}, "\t"),
		strings.Join([]string{"PLT", "A", "PADTON", "1", "01-01-2020 00:00:00", "", "210", "DC", "Y", "N"}, "\t"),
		strings.Join([]string{"REF", "A", "ACT", "TB", "Starts here" + strings.Repeat(" ", 60)}, "\t"),
		strings.Join([]string{"REF", "A", "PWR", "DC", "Direct current"}, "\t"),
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bplan.txt"),
		[]byte(strings.Join(lines, "\n")+"\n"), 0o644))

	conn := &fakeConn{}
	w := store.NewWriter(conn)
	w.Start(context.Background())

	require.NoError(t, Import(dir, w))
	require.NoError(t, w.Sync(context.Background()))
	w.Close()

	calls := conn.calls()
	require.Len(t, calls, 4)
	assert.Equal(t, insertNetworkLinkSQL, calls[0].sql)
	assert.Len(t, calls[0].args, 16)
	assert.Equal(t, insertPlatformSQL, calls[1].sql)
	assert.Len(t, calls[1].args, 8)

	assert.Equal(t, upsertReferenceSQL, calls[2].sql)
	assert.Equal(t, []any{"BPLAN", "en_gb", "ACT", "TB", "Starts here"}, calls[2].args,
		"activity descriptions are truncated and right-stripped")
	assert.Equal(t, []any{"BPLAN", "en_gb", "PWR", "DC", "Direct current"}, calls[3].args)
}

func TestImportMissingFile(t *testing.T) {
	assert.Error(t, Import(t.TempDir(), store.NewWriter(&fakeConn{})))
}
