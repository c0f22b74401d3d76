package models

// ExecutionPlan is an engine execution plan in up to three textual encodings
// plus a parsed operator tree. Which encodings are populated depends on the
// engine: SQL Server emits XML, Postgres and MySQL emit JSON, Oracle emits
// formatted text.
type ExecutionPlan struct {
	Platform      PlatformType
	PlanText      string
	PlanXML       string
	PlanJSON      string
	Root          *ExecutionPlanNode
	EstimatedCost float64
	ActualCost    float64
}

// ExecutionPlanNode is one operator in the plan tree.
type ExecutionPlanNode struct {
	Operation      string
	Description    string
	Cost           float64
	CostPercentage float64
	EstimatedRows  float64
	ActualRows     float64
	Children       []ExecutionPlanNode
}

// costPercentageSlack absorbs rounding in per-node percentages reported by
// engines.
const costPercentageSlack = 0.5

// ChildCostConsistent reports whether the cost percentages of the direct
// children sum to at most 100, allowing for rounding.
func (n *ExecutionPlanNode) ChildCostConsistent() bool {
	var sum float64
	for i := range n.Children {
		sum += n.Children[i].CostPercentage
	}
	return sum <= 100+costPercentageSlack
}
