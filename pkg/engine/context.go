// Package engine implements workflow execution: the runner that starts a
// run, the dispatcher that fans node activations out onto the work queue,
// and the task that executes one node of one execution.
package engine

// Merge returns a new context map holding the union of base and extra,
// with extra winning on key conflicts. Neither input is mutated; concurrent
// branches may derive contexts from the same parent simultaneously.
func Merge(base map[string]any, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(extra))

	for k, v := range base {
		merged[k] = v
	}

	for k, v := range extra {
		merged[k] = v
	}

	return merged
}
