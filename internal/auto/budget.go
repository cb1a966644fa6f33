package auto

import (
	"fmt"

	"github.com/felixgeelhaar/stepwise/internal/journal"
)

// budgetThreshold is a usage percentage that earns a journal warning.
type budgetThreshold struct {
	Percentage float64
	Message    string
}

var defaultThresholds = []budgetThreshold{
	{75.0, "Step budget warning: 75% of steps used"},
	{90.0, "Step budget warning: 90% of steps used, approaching limit"},
}

// budget counts uses of a bounded resource. A limit of 0 is unlimited.
type budget struct {
	name  string
	limit int
	used  int
}

func newBudget(name string, limit int) *budget {
	return &budget{name: name, limit: limit}
}

// take consumes one unit, or reports false once the limit is reached.
func (b *budget) take() bool {
	if b.limit > 0 && b.used >= b.limit {
		return false
	}
	b.used++
	return true
}

// warn journals the highest threshold crossed by the latest take.
func (b *budget) warn(j *journal.Journal) {
	if b.limit <= 0 {
		return
	}
	before := float64(b.used-1) / float64(b.limit) * 100
	after := float64(b.used) / float64(b.limit) * 100
	for i := len(defaultThresholds) - 1; i >= 0; i-- {
		th := defaultThresholds[i]
		if before < th.Percentage && after >= th.Percentage {
			j.Warnf("%s (%d/%d)", th.Message, b.used, b.limit)
			return
		}
	}
}

func (b *budget) String() string {
	if b.limit <= 0 {
		return fmt.Sprintf("%s: %d used, unlimited", b.name, b.used)
	}
	return fmt.Sprintf("%s: %d/%d used", b.name, b.used, b.limit)
}
