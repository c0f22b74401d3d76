package mysql

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/dberr"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
)

// EXPLAIN FORMAT=JSON shapes. MySQL emits cost figures as strings.

type explainPayload struct {
	QueryBlock queryBlock `json:"query_block"`
}

type queryBlock struct {
	SelectID          int                `json:"select_id"`
	CostInfo          *blockCostInfo     `json:"cost_info"`
	Table             *tableNode         `json:"table"`
	NestedLoop        []nestedLoopEntry  `json:"nested_loop"`
	OrderingOperation *orderingOperation `json:"ordering_operation"`
}

type orderingOperation struct {
	UsingFilesort bool              `json:"using_filesort"`
	Table         *tableNode        `json:"table"`
	NestedLoop    []nestedLoopEntry `json:"nested_loop"`
}

type nestedLoopEntry struct {
	Table *tableNode `json:"table"`
}

type blockCostInfo struct {
	QueryCost string `json:"query_cost"`
}

type tableNode struct {
	TableName           string         `json:"table_name"`
	AccessType          string         `json:"access_type"`
	Key                 string         `json:"key"`
	RowsExaminedPerScan float64        `json:"rows_examined_per_scan"`
	CostInfo            *tableCostInfo `json:"cost_info"`
}

type tableCostInfo struct {
	ReadCost string `json:"read_cost"`
	EvalCost string `json:"eval_cost"`
}

// parsePlanJSON turns an EXPLAIN FORMAT=JSON payload into a populated
// ExecutionPlan. The query block becomes the root; each accessed table
// becomes a child whose cost percentage is its share among siblings.
func parsePlanJSON(payload string) (*models.ExecutionPlan, error) {
	var parsed explainPayload
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, dberr.NewEngineError("execution plan", fmt.Errorf("unexpected EXPLAIN payload: %w", err))
	}
	if parsed.QueryBlock.SelectID == 0 && parsed.QueryBlock.Table == nil &&
		len(parsed.QueryBlock.NestedLoop) == 0 && parsed.QueryBlock.OrderingOperation == nil {
		return nil, dberr.NewEngineError("execution plan", fmt.Errorf("payload has no query_block"))
	}

	block := parsed.QueryBlock
	root := models.ExecutionPlanNode{Operation: "query_block"}
	if block.CostInfo != nil {
		root.Cost = parseCost(block.CostInfo.QueryCost)
	}

	tables := block.tables()
	var childCostTotal float64
	for _, table := range tables {
		childCostTotal += tableCost(table)
	}
	for _, table := range tables {
		child := models.ExecutionPlanNode{
			Operation:     table.AccessType,
			Description:   describeTable(table),
			Cost:          tableCost(table),
			EstimatedRows: table.RowsExaminedPerScan,
		}
		if childCostTotal > 0 {
			child.CostPercentage = child.Cost / childCostTotal * 100
		}
		root.Children = append(root.Children, child)
	}

	return &models.ExecutionPlan{
		Platform:      models.PlatformMySQL,
		PlanJSON:      payload,
		Root:          &root,
		EstimatedCost: root.Cost,
	}, nil
}

func (b queryBlock) tables() []*tableNode {
	var tables []*tableNode
	if b.Table != nil {
		tables = append(tables, b.Table)
	}
	for i := range b.NestedLoop {
		if b.NestedLoop[i].Table != nil {
			tables = append(tables, b.NestedLoop[i].Table)
		}
	}
	if b.OrderingOperation != nil {
		if b.OrderingOperation.Table != nil {
			tables = append(tables, b.OrderingOperation.Table)
		}
		for i := range b.OrderingOperation.NestedLoop {
			if b.OrderingOperation.NestedLoop[i].Table != nil {
				tables = append(tables, b.OrderingOperation.NestedLoop[i].Table)
			}
		}
	}
	return tables
}

func tableCost(t *tableNode) float64 {
	if t.CostInfo == nil {
		return 0
	}
	return parseCost(t.CostInfo.ReadCost) + parseCost(t.CostInfo.EvalCost)
}

func describeTable(t *tableNode) string {
	if t.Key != "" {
		return fmt.Sprintf("%s on %s using %s", t.AccessType, t.TableName, t.Key)
	}
	return fmt.Sprintf("%s on %s", t.AccessType, t.TableName)
}

func parseCost(s string) float64 {
	cost, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return cost
}

func planTables(plan *models.ExecutionPlan) []string {
	if plan == nil || plan.Root == nil {
		return nil
	}
	seen := make(map[string]bool)
	var tables []string
	for i := range plan.Root.Children {
		_, rest, found := strings.Cut(plan.Root.Children[i].Description, " on ")
		if !found {
			continue
		}
		table, _, _ := strings.Cut(rest, " using ")
		if table == "" || seen[table] {
			continue
		}
		seen[table] = true
		tables = append(tables, table)
	}
	return tables
}
