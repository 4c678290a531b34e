package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cleaning-crm/parsers"
)

// Phase is the step an import session is in
type Phase string

const (
	PhaseUpload     Phase = "upload"
	PhaseMap        Phase = "map"
	PhaseProcessing Phase = "processing"
	PhaseSuccess    Phase = "success"
)

// ErrInvalidTransition is returned when an action is not allowed in the current phase
var ErrInvalidTransition = errors.New("action not allowed in the current import phase")

func transitionError(action string, phase Phase) error {
	return fmt.Errorf("%w: cannot %s during %s", ErrInvalidTransition, action, phase)
}

// SessionConfig is fixed for the life of a session
type SessionConfig struct {
	Fields      []FieldSpec
	Rules       []MappingRule
	PreviewRows int
}

// Failure describes the batch that stopped the last run
type Failure struct {
	Batch    int    `json:"batch"`
	Batches  int    `json:"batches"`
	Imported int    `json:"imported"`
	Total    int    `json:"total"`
	Message  string `json:"message"`
}

// Snapshot is a copy of the session state, safe to render or serialize
type Snapshot struct {
	ID        string           `json:"id"`
	Phase     Phase            `json:"phase"`
	FileName  string           `json:"file_name,omitempty"`
	FileSize  int              `json:"file_size,omitempty"`
	Headers   []string         `json:"headers,omitempty"`
	Preview   []parsers.Record `json:"preview,omitempty"`
	Mapping   ColumnMapping    `json:"mapping"`
	Fields    []FieldSpec      `json:"fields"`
	Processed int              `json:"processed"`
	Total     int              `json:"total"`
	Percent   int              `json:"percent"`
	Committed int              `json:"committed"`
	Error     string           `json:"error,omitempty"`
	Failure   *Failure         `json:"failure,omitempty"`
	Problems  []MappingProblem `json:"problems,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// MappingProblem is one pre-flight finding shown next to a field
type MappingProblem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Session walks one file through upload -> map -> processing -> success.
// A failed batch returns it to map with the error kept; ChangeFile returns
// map to upload and forgets everything. All methods are safe to call from
// several goroutines so progress can be polled while Run is working.
type Session struct {
	mu  sync.Mutex
	id  string
	cfg SessionConfig

	phase     Phase
	fileName  string
	data      []byte
	parseOpts parsers.Options
	headers   []string
	preview   []parsers.Record
	mapping   ColumnMapping

	processed int
	total     int
	percent   int
	committed int // rows written by this session across all runs
	lastErr   string
	failure   *Failure
	problems  []MappingProblem
	running   bool
	updatedAt time.Time
}

// NewSession starts a session in the upload phase
func NewSession(id string, cfg SessionConfig) *Session {
	if len(cfg.Fields) == 0 {
		cfg.Fields = LeadFields
	}
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = 5
	}
	return &Session{
		id:        id,
		cfg:       cfg,
		phase:     PhaseUpload,
		mapping:   ColumnMapping{},
		updatedAt: time.Now(),
	}
}

func (s *Session) ID() string { return s.id }

// Phase returns the current phase
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Load parses a preview of data and suggests a mapping. A file that cannot
// be parsed leaves the session in upload with the error recorded.
func (s *Session) Load(ctx context.Context, name string, data []byte, opts parsers.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseUpload {
		return transitionError("load a file", s.phase)
	}

	table, err := parsers.PreviewCSV(ctx, bytes.NewReader(data), s.cfg.PreviewRows, opts)
	if err != nil {
		s.lastErr = fmt.Sprintf("could not read CSV file: %v", err)
		s.touch()
		return fmt.Errorf("load %s: %w", name, err)
	}

	s.fileName = name
	s.data = data
	s.parseOpts = opts
	s.headers = table.Headers
	s.preview = table.Rows
	s.mapping = AutoMap(table.Headers, s.cfg.Rules)
	s.lastErr = ""
	s.failure = nil
	s.problems = nil
	s.phase = PhaseMap
	s.touch()
	return nil
}

// ChangeFile drops the file and everything derived from it
func (s *Session) ChangeFile() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseMap && s.phase != PhaseUpload {
		return transitionError("change the file", s.phase)
	}
	s.reset()
	return nil
}

// SetMapping points field at column; an empty column ignores the field
func (s *Session) SetMapping(field, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseMap {
		return transitionError("edit the mapping", s.phase)
	}
	if _, ok := fieldByKey(s.cfg.Fields, field); !ok {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidMapping, field)
	}
	if column == "" {
		delete(s.mapping, field)
	} else {
		s.mapping[field] = column
	}
	s.problems = nil
	s.touch()
	return nil
}

// ReplaceMapping swaps in a whole mapping at once
func (s *Session) ReplaceMapping(mapping ColumnMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseMap {
		return transitionError("edit the mapping", s.phase)
	}
	s.mapping = mapping.Clone()
	s.problems = nil
	s.touch()
	return nil
}

// Begin validates the mapping and moves to processing. Nothing is written
// when validation fails; the problems stay on the session for display.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseMap {
		return transitionError("start the import", s.phase)
	}

	if err := ValidateMapping(s.cfg.Fields, s.mapping, s.headers); err != nil {
		var mErr *MappingError
		if errors.As(err, &mErr) {
			s.problems = make([]MappingProblem, len(mErr.Problems))
			for i, p := range mErr.Problems {
				s.problems[i] = MappingProblem{Field: p.Field, Message: p.Message}
			}
		}
		s.lastErr = err.Error()
		s.touch()
		return err
	}

	s.phase = PhaseProcessing
	s.processed, s.total, s.percent = 0, 0, 0
	s.lastErr = ""
	s.problems = nil
	s.running = false
	s.touch()
	return nil
}

// Run reads the whole file and feeds it to im. It must follow a successful
// Begin and can only be called once per Begin. A finished session drops the
// file and the preview; only counters and headers remain.
func (s *Session) Run(ctx context.Context, im *Importer) (*Result, error) {
	s.mu.Lock()
	if s.phase != PhaseProcessing || s.running {
		phase := s.phase
		s.mu.Unlock()
		return nil, transitionError("run the import", phase)
	}
	s.running = true
	data, opts, mapping := s.data, s.parseOpts, s.mapping.Clone()
	s.mu.Unlock()

	table, err := parsers.ReadCSV(ctx, bytes.NewReader(data), opts)
	if err != nil {
		s.fail(fmt.Sprintf("could not read CSV file: %v", err), nil)
		return nil, err
	}

	s.mu.Lock()
	s.total = len(table.Rows)
	s.touch()
	s.mu.Unlock()

	result, err := im.Run(ctx, table.Rows, mapping, func(p Progress) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.committed += p.Processed - s.processed
		s.processed = p.Processed
		s.percent = p.Percent
		s.touch()
	})
	if err != nil {
		var batchErr *BatchError
		if errors.As(err, &batchErr) {
			s.fail(DisplayMessage(batchErr.Err), &Failure{
				Batch:    batchErr.Batch,
				Batches:  batchErr.Batches,
				Imported: batchErr.Imported,
				Total:    batchErr.Total,
				Message:  DisplayMessage(batchErr.Err),
			})
		} else {
			s.fail(DisplayMessage(err), nil)
		}
		return nil, err
	}

	s.mu.Lock()
	s.phase = PhaseSuccess
	s.data = nil
	s.preview = nil
	s.processed = result.Imported
	s.percent = 100
	s.failure = nil
	s.running = false
	s.touch()
	s.mu.Unlock()
	return result, nil
}

func (s *Session) fail(msg string, failure *Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseMap
	s.lastErr = msg
	s.failure = failure
	s.running = false
	s.touch()
}

// Close ends the session. It is refused while processing.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseProcessing {
		return transitionError("close the session", s.phase)
	}
	s.reset()
	return nil
}

// Snapshot copies the state for rendering
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.id,
		Phase:     s.phase,
		FileName:  s.fileName,
		FileSize:  len(s.data),
		Headers:   append([]string(nil), s.headers...),
		Mapping:   s.mapping.Clone(),
		Fields:    s.cfg.Fields,
		Processed: s.processed,
		Total:     s.total,
		Percent:   s.percent,
		Committed: s.committed,
		Error:     s.lastErr,
		Problems:  append([]MappingProblem(nil), s.problems...),
		UpdatedAt: s.updatedAt,
	}
	if len(s.preview) > 0 {
		snap.Preview = make([]parsers.Record, len(s.preview))
		for i, row := range s.preview {
			cp := make(parsers.Record, len(row))
			for k, v := range row {
				cp[k] = v
			}
			snap.Preview[i] = cp
		}
	}
	if s.failure != nil {
		f := *s.failure
		snap.Failure = &f
	}
	return snap
}

func (s *Session) reset() {
	s.phase = PhaseUpload
	s.fileName = ""
	s.data = nil
	s.parseOpts = parsers.Options{}
	s.headers = nil
	s.preview = nil
	s.mapping = ColumnMapping{}
	s.processed, s.total, s.percent = 0, 0, 0
	s.committed = 0
	s.lastErr = ""
	s.failure = nil
	s.problems = nil
	s.running = false
	s.touch()
}

// Evictable reports whether the session has been idle since before cutoff
// and is not writing rows
func (s *Session) Evictable(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase != PhaseProcessing && s.updatedAt.Before(cutoff)
}

func (s *Session) touch() {
	s.updatedAt = time.Now()
}
