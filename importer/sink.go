package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Sink accepts one batch of records per call. A batch is written as a whole
// or rejected as a whole; the importer never retries.
type Sink interface {
	InsertBatch(ctx context.Context, records []NormalizedRecord) error
}

// GenericSinkMessage is shown when the store rejected a batch without saying why
const GenericSinkMessage = `could not reach the data store; check that the "leads" table exists`

// SinkError is a structured rejection from the store. Any field may be empty.
type SinkError struct {
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Err     error  `json:"-"`
}

func (e *SinkError) Error() string {
	return e.DisplayMessage()
}

func (e *SinkError) Unwrap() error { return e.Err }

// DisplayMessage prefers the message, then details, then hint
func (e *SinkError) DisplayMessage() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Details != "":
		return e.Details
	case e.Hint != "":
		return e.Hint
	}
	return GenericSinkMessage
}

// DisplayMessage renders any import failure for the user
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	var sinkErr *SinkError
	if errors.As(err, &sinkErr) {
		return sinkErr.DisplayMessage()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return GenericSinkMessage
}

// GormSink writes batches through an injected gorm handle
type GormSink struct {
	db    *gorm.DB
	model interface{}
}

// NewGormSink inserts into the table of model (e.g. &leads.LeadModel{})
func NewGormSink(db *gorm.DB, model interface{}) *GormSink {
	return &GormSink{db: db, model: model}
}

// InsertBatch writes all records with a single INSERT. Records are plain
// maps, so the insert goes through the bare table name and updated_at is
// copied from created_at when the model has that column.
func (s *GormSink) InsertBatch(ctx context.Context, records []NormalizedRecord) error {
	if len(records) == 0 {
		return nil
	}

	stmt := &gorm.Statement{DB: s.db}
	if err := stmt.Parse(s.model); err != nil {
		return &SinkError{Message: fmt.Sprintf("resolve target table: %v", err), Err: err}
	}
	_, hasUpdatedAt := stmt.Schema.FieldsByDBName["updated_at"]

	rows := make([]map[string]interface{}, len(records))
	for i, r := range records {
		row := make(map[string]interface{}, len(r)+1)
		for k, v := range r {
			row[k] = v
		}
		if _, set := row["updated_at"]; hasUpdatedAt && !set {
			row["updated_at"] = row["created_at"]
		}
		rows[i] = row
	}

	if err := s.db.WithContext(ctx).Table(stmt.Schema.Table).Create(rows).Error; err != nil {
		return toSinkError(err)
	}
	return nil
}

func toSinkError(err error) *SinkError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &SinkError{
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
			Err:     err,
		}
	}
	return &SinkError{Message: err.Error(), Err: err}
}
