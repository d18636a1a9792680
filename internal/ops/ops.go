package ops

import (
	"crypto/rand"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/arcana/internal/config"
	"github.com/hpungsan/arcana/internal/deck"
	"github.com/hpungsan/arcana/internal/errors"
	"github.com/hpungsan/arcana/internal/logging"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Deps carries everything an operation needs. Construct it once at startup;
// tests swap in a fixed clock and a scripted RNG.
type Deps struct {
	DB      *sql.DB
	Config  *config.Config
	Catalog *deck.Catalog
	RNG     deck.RNG
	Now     func() time.Time
	Logger  *slog.Logger

	// BaseDir holds arcana.db and the default exports directory.
	BaseDir string
}

// NewDeps wires the production defaults around an open database.
func NewDeps(database *sql.DB, cfg *config.Config, baseDir string, logger *slog.Logger) (*Deps, error) {
	catalog, err := deck.Embedded()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Deps{
		DB:      database,
		Config:  cfg,
		Catalog: catalog,
		RNG:     deck.SystemRNG(),
		Now:     time.Now,
		Logger:  logger,
		BaseDir: baseDir,
	}, nil
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) rng() deck.RNG {
	if d.RNG != nil {
		return d.RNG
	}
	return deck.SystemRNG()
}

func (d *Deps) cfg() *config.Config {
	if d.Config != nil {
		return d.Config
	}
	return config.DefaultConfig()
}

func (d *Deps) log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return logging.Discard()
}

func (d *Deps) catalog() (*deck.Catalog, error) {
	if d.Catalog != nil {
		return d.Catalog, nil
	}
	c, err := deck.Embedded()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return c, nil
}

// owner resolves the collection namespace: explicit input, then config, then the default.
func (d *Deps) owner(input string) string {
	if o := strings.TrimSpace(input); o != "" {
		return o
	}
	if o := strings.TrimSpace(d.cfg().Owner); o != "" {
		return o
	}
	return config.DefaultOwner
}

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// clampPage applies limit defaults and bounds. all=true disables the limit.
func clampPage(limit, offset int, all bool) (int, int) {
	offset = max(offset, 0)
	if all {
		return 0, 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, offset
}

func buildPagination(limit, offset, returned, total int) Pagination {
	if limit == 0 {
		limit = returned
	}
	return Pagination{
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+returned < total,
		Total:   total,
	}
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newID generates a ULID. The shared monotonic source keeps ids sortable even
// when several are minted within one millisecond.
func newID(t time.Time) (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return id.String(), nil
}

// checkLength enforces a rune limit on free text. limit <= 0 disables the check.
func checkLength(field, text string, limit int) error {
	if limit <= 0 {
		return nil
	}
	if n := deck.CountChars(text); n > limit {
		return errors.NewContentTooLarge(field, limit, n)
	}
	return nil
}
