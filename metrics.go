package docstore

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// observe counts an operation and, when *err is set on return, its failure.
func observe(model, op string, err *error) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`docstore_operations_total{model=%q,op=%q}`, model, op)).Inc()
	if err != nil && *err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`docstore_errors_total{model=%q,op=%q}`, model, op)).Inc()
	}
}
