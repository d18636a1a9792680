package ops

import (
	"testing"
	"time"

	"github.com/hpungsan/arcana/internal/config"
	"github.com/hpungsan/arcana/internal/db"
	"github.com/stretchr/testify/require"
)

// seqRNG returns values from a pre-set sequence, modulo n.
type seqRNG struct {
	values []int
	idx    int
}

func (r *seqRNG) Intn(n int) int {
	v := r.values[r.idx%len(r.values)] % n
	r.idx++
	return v
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// newTestDeps opens a fresh database in a temp dir with a fixed UTC clock at
// 2024-03-10 09:00 and an RNG that always returns 0.
func newTestDeps(t *testing.T) (*Deps, *testClock) {
	t.Helper()
	baseDir := t.TempDir()
	database, err := db.Init(baseDir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"

	d, err := NewDeps(database, cfg, baseDir, nil)
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	d.Now = clock.Now
	d.RNG = &seqRNG{values: []int{0}}
	return d, clock
}

func pct(v int) *int { return &v }

// threeCards fills spread 1.
func threeCards() []CardPlacement {
	return []CardPlacement{
		{CardID: "m00", Orientation: "upright"},
		{CardID: "c02", Orientation: "reversed"},
		{CardID: "s10"},
	}
}
