// Package config loads the engine's runtime settings.
//
// Settings are a flat JSON document validated against an embedded CUE
// schema. The schema is the single source of truth for key names,
// bounds, and defaults: the document unifies with #Config, so unknown
// keys, type mismatches, and out-of-range values all fail at startup,
// and absent keys take their schema defaults.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/roach88/shelfsync/internal/backoff"
)

//go:embed schema.cue
var schemaCUE string

// Config holds validated settings under their document key names.
// Values are kept in document units (seconds, strings); the accessor
// methods convert to Go types.
type Config struct {
	PollInterval    int      `json:"POLL_INTERVAL"`
	MaxRetries      int      `json:"MAX_RETRIES"`
	RetryDelay      float64  `json:"RETRY_DELAY"`
	BatchSize       int      `json:"BATCH_SIZE"`
	LockTimeout     float64  `json:"FILE_LOCK_TIMEOUT"`
	LockRetryDelay  float64  `json:"FILE_LOCK_RETRY_DELAY"`
	CSVEncoding     string   `json:"CSV_ENCODING"`
	CSVDelimiter    string   `json:"CSV_DELIMITER"`
	PreserveBackups int      `json:"PRESERVE_BACKUP_COUNT"`
	DebugMode       bool     `json:"DEBUG_MODE"`
	InputDir        string   `json:"INPUT_DIR"`
	OutputDir       string   `json:"OUTPUT_DIR"`
	StateFile       string   `json:"STATE_FILE"`
	JournalFile     string   `json:"JOURNAL_FILE"`
	LogDir          string   `json:"LOG_DIR"`
	MonitorPatterns []string `json:"MONITOR_FILE_PATTERNS"`
	SourceEncoding  string   `json:"SOURCE_ENCODING"`
	MappingsDir     string   `json:"MAPPINGS_DIR"`
}

// Load reads a JSON settings document and validates it against the
// schema. A missing file surfaces as fs.ErrNotExist so callers can
// fall back to Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	return Parse(data, path)
}

// Default evaluates the schema against an empty document, yielding
// every key's default value.
func Default() (*Config, error) {
	return Parse([]byte("{}"), "defaults")
}

// Parse validates a raw JSON document against the schema. filename is
// used in error positions only.
func Parse(data []byte, filename string) (*Config, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	expr, err := cuejson.Extract(filename, data)
	if err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	doc := schema.Context().BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", flatten(err))
	}
	merged := schema.Unify(doc)
	if err := merged.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", flatten(err))
	}
	return decode(merged)
}

func compileSchema() (cue.Value, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compiling settings schema: %w", err)
	}
	schema := v.LookupPath(cue.ParsePath("#Config"))
	if !schema.Exists() {
		return cue.Value{}, fmt.Errorf("settings schema: missing #Config definition")
	}
	return schema, nil
}

func decode(v cue.Value) (*Config, error) {
	cfg := &Config{}
	if err := v.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", flatten(err))
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// check covers the rules the schema cannot express: delimiter framing
// characters and glob syntax.
func (c *Config) check() error {
	d, _ := utf8.DecodeRuneInString(c.CSVDelimiter)
	switch d {
	case utf8.RuneError:
		return fmt.Errorf("invalid settings: CSV_DELIMITER is not valid UTF-8")
	case '"', '\r', '\n':
		return fmt.Errorf("invalid settings: CSV_DELIMITER %q conflicts with the output framing", c.CSVDelimiter)
	}
	for _, pat := range c.MonitorPatterns {
		if _, err := filepath.Match(pat, "probe"); err != nil {
			return fmt.Errorf("invalid settings: MONITOR_FILE_PATTERNS %q: %w", pat, err)
		}
	}
	return nil
}

// CycleInterval returns the poll period between sync cycles.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// RetryPolicy returns the backoff budget shared by contended source
// reads and output renames.
func (c *Config) RetryPolicy() backoff.Policy {
	return backoff.Policy{
		MaxRetries: c.MaxRetries,
		Delay:      seconds(c.RetryDelay),
	}
}

// LockWait bounds a single shared-lock attempt.
func (c *Config) LockWait() time.Duration { return seconds(c.LockTimeout) }

// LockPoll is the interval between lock tries within one attempt.
func (c *Config) LockPoll() time.Duration { return seconds(c.LockRetryDelay) }

// Delimiter returns the output field separator. check has already
// guaranteed a single valid rune.
func (c *Config) Delimiter() rune {
	d, _ := utf8.DecodeRuneInString(c.CSVDelimiter)
	return d
}

// SnapshotEncoding resolves SOURCE_ENCODING to a text decoding.
// Labels follow the WHATWG registry, which covers the sloppy legacy
// spellings (cp1252, latin1) that point-of-sale exports actually use.
func (c *Config) SnapshotEncoding() (encoding.Encoding, error) {
	enc, err := htmlindex.Get(c.SourceEncoding)
	if err != nil {
		return nil, fmt.Errorf("SOURCE_ENCODING %q: %w", c.SourceEncoding, err)
	}
	return enc, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// flatten renders every violation carried by a CUE error so one pass
// over a bad settings file reports all of its problems.
func flatten(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) <= 1 {
		return err
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}
