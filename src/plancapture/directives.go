package plancapture

import (
	"fmt"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
)

// planProtocol is the concrete statement sequence that yields a plan for one
// engine. setup statements are executed first; query produces the payload;
// cleanup statements run unconditionally once setup has succeeded.
type planProtocol struct {
	setup    []string
	query    string
	cleanup  []string
	isJSON   bool // payload is a JSON document and is schema-checked
	multiRow bool // payload is line-oriented, one line per result row
}

// protocolFor builds the capture protocol for the given platform and user
// statement.
func protocolFor(platform models.PlatformType, sqlText string) (planProtocol, error) {
	switch platform {
	case models.PlatformSQLServer:
		// SHOWPLAN_XML is session state: every statement after SET ... ON
		// returns its plan instead of executing, until SET ... OFF.
		return planProtocol{
			setup:   []string{"SET SHOWPLAN_XML ON"},
			query:   sqlText,
			cleanup: []string{"SET SHOWPLAN_XML OFF"},
		}, nil
	case models.PlatformPostgreSQL:
		return planProtocol{
			query:  "EXPLAIN (FORMAT JSON) " + sqlText,
			isJSON: true,
		}, nil
	case models.PlatformMySQL:
		return planProtocol{
			query:  "EXPLAIN FORMAT=JSON " + sqlText,
			isJSON: true,
		}, nil
	case models.PlatformOracle:
		// EXPLAIN PLAN writes into plan_table; the fetch formats it. The
		// delete keeps repeated captures on one session from accumulating.
		return planProtocol{
			setup:    []string{"EXPLAIN PLAN FOR " + sqlText},
			query:    "SELECT plan_table_output FROM TABLE(DBMS_XPLAN.DISPLAY())",
			cleanup:  []string{"DELETE FROM plan_table"},
			multiRow: true,
		}, nil
	}
	return planProtocol{}, fmt.Errorf("no plan capture protocol for platform %q", platform)
}
