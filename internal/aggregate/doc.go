// Package aggregate tracks completed tasks across phases and specs so
// commits can fire per task, per phase, or per spec.
//
// The aggregator is the sole writer of the pending-tasks file. Persistence
// is best effort: a failed save is logged and swallowed rather than blocking
// the workflow, and a corrupt file loads as an empty queue.
package aggregate
