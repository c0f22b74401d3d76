package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/dberr"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
)

// explainNode mirrors the shape EXPLAIN (FORMAT JSON) emits for one operator.
type explainNode struct {
	NodeType     string        `json:"Node Type"`
	RelationName string        `json:"Relation Name"`
	IndexName    string        `json:"Index Name"`
	TotalCost    float64       `json:"Total Cost"`
	PlanRows     float64       `json:"Plan Rows"`
	ActualRows   float64       `json:"Actual Rows"`
	Plans        []explainNode `json:"Plans"`
}

type explainEnvelope struct {
	Plan explainNode `json:"Plan"`
}

// parsePlanJSON turns an EXPLAIN (FORMAT JSON) payload into a populated
// ExecutionPlan. Child cost percentages are shares among siblings, so the
// children of any node total 100.
func parsePlanJSON(payload string) (*models.ExecutionPlan, error) {
	var envelopes []explainEnvelope
	if err := json.Unmarshal([]byte(payload), &envelopes); err != nil {
		return nil, dberr.NewEngineError("execution plan", fmt.Errorf("unexpected EXPLAIN payload: %w", err))
	}
	if len(envelopes) == 0 {
		return nil, dberr.NewEngineError("execution plan", fmt.Errorf("empty EXPLAIN payload"))
	}

	root := buildPlanNode(envelopes[0].Plan)
	return &models.ExecutionPlan{
		Platform:      models.PlatformPostgreSQL,
		PlanJSON:      payload,
		Root:          &root,
		EstimatedCost: root.Cost,
	}, nil
}

func buildPlanNode(src explainNode) models.ExecutionPlanNode {
	node := models.ExecutionPlanNode{
		Operation:     src.NodeType,
		Description:   describeNode(src),
		Cost:          src.TotalCost,
		EstimatedRows: src.PlanRows,
		ActualRows:    src.ActualRows,
	}

	var childCostTotal float64
	for i := range src.Plans {
		childCostTotal += src.Plans[i].TotalCost
	}
	for i := range src.Plans {
		child := buildPlanNode(src.Plans[i])
		if childCostTotal > 0 {
			child.CostPercentage = child.Cost / childCostTotal * 100
		}
		node.Children = append(node.Children, child)
	}
	return node
}

func describeNode(src explainNode) string {
	switch {
	case src.RelationName != "" && src.IndexName != "":
		return fmt.Sprintf("%s on %s using %s", src.NodeType, src.RelationName, src.IndexName)
	case src.RelationName != "":
		return fmt.Sprintf("%s on %s", src.NodeType, src.RelationName)
	case src.IndexName != "":
		return fmt.Sprintf("%s using %s", src.NodeType, src.IndexName)
	}
	return src.NodeType
}

// planRelations walks the tree collecting distinct relation names in
// first-seen order.
func planRelations(node *models.ExecutionPlanNode, seen map[string]bool, out *[]string) {
	if node == nil {
		return
	}
	if relation := relationFromDescription(node.Description); relation != "" && !seen[relation] {
		seen[relation] = true
		*out = append(*out, relation)
	}
	for i := range node.Children {
		planRelations(&node.Children[i], seen, out)
	}
}

func relationFromDescription(description string) string {
	_, rest, found := strings.Cut(description, " on ")
	if !found {
		return ""
	}
	relation, _, _ := strings.Cut(rest, " using ")
	return relation
}
