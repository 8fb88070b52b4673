package pipeline

import "errors"

// ErrSchemaViolation marks ingest-time failures: a required field is absent
// or a value cannot take its declared type. Fatal; the run is not retried.
var ErrSchemaViolation = errors.New("schema violation")

// ErrSinkWrite marks a storage-level failure persisting a table. The run
// aborts, but tables already written stay written, so a failed run can leave
// the output root mixed across tables.
var ErrSinkWrite = errors.New("sink write failure")
