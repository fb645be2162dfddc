package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateWorkflowID(t *testing.T) {
	assert.Equal(t, "aggregate:delta:cycle-1", AggregateWorkflowID(false, "cycle-1"))
	assert.Equal(t, "aggregate:full:20240310T120000", AggregateWorkflowID(true, "20240310T120000"))
}
