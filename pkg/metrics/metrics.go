package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "songlake_etl_build_info",
		Help: "Build information of the songlake ETL",
	}, []string{"version", "commit", "date"})

	RowsRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "songlake_etl_rows_read_total", Help: "Raw records read per source type.",
	}, []string{"source"})

	RowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "songlake_etl_rows_written_total", Help: "Rows persisted per output table.",
	}, []string{"table"})
)
