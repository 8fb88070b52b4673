package pipeline

import (
	"fmt"
	"strings"
)

// ColumnType is the engine-side semantic type of a raw column.
type ColumnType string

const (
	TypeVarchar ColumnType = "VARCHAR"
	TypeBigint  ColumnType = "BIGINT"
	TypeDouble  ColumnType = "DOUBLE"
)

// Column describes one column of a raw record type: its name, engine type and
// whether a record missing it is rejected at ingest.
type Column struct {
	Name     string
	Type     ColumnType
	Required bool
}

// Record-type tags accepted by Columns.
const (
	RecordSong = "song"
	RecordLog  = "log"
)

// Columns returns the ordered column list for a raw record type.
func Columns(recordType string) ([]Column, error) {
	switch recordType {
	case RecordSong:
		return SongColumns(), nil
	case RecordLog:
		return LogColumns(), nil
	default:
		return nil, fmt.Errorf("unknown record type %q", recordType)
	}
}

// SongColumns is the schema of raw song metadata records. Latitude and
// longitude arrive string-encoded in the source and stay VARCHAR here.
func SongColumns() []Column {
	return []Column{
		{Name: "artist_id", Type: TypeVarchar, Required: true},
		{Name: "artist_latitude", Type: TypeVarchar},
		{Name: "artist_longitude", Type: TypeVarchar},
		{Name: "artist_location", Type: TypeVarchar},
		{Name: "artist_name", Type: TypeVarchar, Required: true},
		{Name: "song_id", Type: TypeVarchar, Required: true},
		{Name: "title", Type: TypeVarchar, Required: true},
		{Name: "duration", Type: TypeDouble},
		{Name: "year", Type: TypeBigint},
	}
}

// LogColumns is the schema of raw usage log events. ts is epoch milliseconds;
// conversion to a calendar timestamp happens downstream.
func LogColumns() []Column {
	return []Column{
		{Name: "artist", Type: TypeVarchar, Required: true},
		{Name: "auth", Type: TypeVarchar},
		{Name: "firstName", Type: TypeVarchar},
		{Name: "gender", Type: TypeVarchar},
		{Name: "itemInSession", Type: TypeBigint},
		{Name: "lastName", Type: TypeVarchar},
		{Name: "length", Type: TypeDouble},
		{Name: "level", Type: TypeVarchar},
		{Name: "location", Type: TypeVarchar},
		{Name: "method", Type: TypeVarchar},
		{Name: "page", Type: TypeVarchar, Required: true},
		{Name: "registration", Type: TypeDouble},
		{Name: "sessionId", Type: TypeBigint},
		{Name: "song", Type: TypeVarchar, Required: true},
		{Name: "status", Type: TypeBigint},
		{Name: "ts", Type: TypeBigint, Required: true},
		{Name: "userAgent", Type: TypeVarchar},
		{Name: "userId", Type: TypeVarchar, Required: true},
	}
}

// readJSONColumns renders the columns struct literal for read_json, pinning
// every column to its declared type so the engine rejects incompatible values
// instead of inferring a schema per file.
func readJSONColumns(cols []Column) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("'%s': '%s'", c.Name, c.Type))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// requiredColumns lists the columns whose NULLs make a record malformed.
func requiredColumns(cols []Column) []string {
	var names []string
	for _, c := range cols {
		if c.Required {
			names = append(names, c.Name)
		}
	}
	return names
}
