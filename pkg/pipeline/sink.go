package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/playbacklabs/songlake/pkg/duck"
)

// WriteSpec ties an engine table to its subdirectory under the output root
// and the columns it is physically partitioned by.
type WriteSpec struct {
	Table       string
	Subdir      string
	PartitionBy []string
}

// WriteSpecs lists every output table in write order. Partition columns are
// derived fields of each row, so partition paths always agree with row
// contents.
func WriteSpecs() []WriteSpec {
	return []WriteSpec{
		{Table: SongsTable, Subdir: "songs", PartitionBy: []string{"year", "artist_id"}},
		{Table: ArtistsTable, Subdir: "artists"},
		{Table: UsersTable, Subdir: "users"},
		{Table: TimeTable, Subdir: "time", PartitionBy: []string{"year", "month"}},
		{Table: SongplaysTable, Subdir: "songplays", PartitionBy: []string{"year", "month"}},
	}
}

// WriteTable persists one table as Parquet under outputURI. Partitioned
// tables get one directory per distinct partition-value combination; write
// mode is always full overwrite, never append or merge.
func WriteTable(ctx context.Context, log *slog.Logger, conn duck.Connection, spec WriteSpec, outputURI string) error {
	root, err := duck.ResolveDataURI(outputURI)
	if err != nil {
		return fmt.Errorf("invalid output location: %w", err)
	}
	dest := strings.TrimSuffix(root, "/") + "/" + spec.Subdir

	// COPY creates partition directories under dest but not missing parents,
	// so a fresh output root has to exist before the first write.
	if !duck.IsS3URI(dest) {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return fmt.Errorf("%w: table %s: %v", ErrSinkWrite, spec.Table, err)
		}
	}

	var query string
	if len(spec.PartitionBy) > 0 {
		query = fmt.Sprintf(
			`COPY (SELECT * FROM %s) TO '%s' (FORMAT PARQUET, PARTITION_BY (%s), OVERWRITE)`,
			spec.Table, escapeSQLString(dest), strings.Join(spec.PartitionBy, ", "),
		)
	} else {
		// Single-file output; COPY replaces an existing file in place.
		query = fmt.Sprintf(
			`COPY (SELECT * FROM %s) TO '%s' (FORMAT PARQUET)`,
			spec.Table, escapeSQLString(dest+"/"+spec.Subdir+".parquet"),
		)
	}

	if _, err := conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%w: table %s to %s: %v", ErrSinkWrite, spec.Table, dest, err)
	}
	log.Info("wrote table", "table", spec.Table, "dest", dest, "partition_by", strings.Join(spec.PartitionBy, ","))
	return nil
}
