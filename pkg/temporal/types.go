package temporal

import "fmt"

const DefaultNamespace = "atcoder"

// Queue names
const (
	QueueAggregate = "aggregate"
)

// Workflow ID patterns
const (
	WorkflowIDAggregateDelta = "aggregate:delta:%s"
	WorkflowIDAggregateFull  = "aggregate:full:%s"
)

// AggregateWorkflowID names an aggregation run. Delta runs are keyed by the ingest cycle id so a
// redelivered event does not start a second run.
func AggregateWorkflowID(full bool, id string) string {
	if full {
		return fmt.Sprintf(WorkflowIDAggregateFull, id)
	}
	return fmt.Sprintf(WorkflowIDAggregateDelta, id)
}
