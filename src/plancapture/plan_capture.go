// Package plancapture produces an engine's estimated execution plan for
// arbitrary SQL text without executing the statement for its side effects.
//
// Engines that support a session-wide plan-only mode (SQL Server) are driven
// through a three-step protocol on a single pinned session: enable plan mode,
// run the caller's statement, disable plan mode. The disable step runs
// unconditionally, including on failure and cancellation, so a failed
// statement never leaves the session in diagnostic mode.
package plancapture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/newrelic/infra-integrations-sdk/v3/log"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/connection"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/dberr"
)

const (
	// DefaultTimeout bounds a capture when the caller passes no budget.
	DefaultTimeout = 15 * time.Second

	// cleanupTimeout bounds the unconditional disable step. It runs on its
	// own deadline so caller cancellation cannot skip it.
	cleanupTimeout = 5 * time.Second
)

// TargetSource yields live connections to the currently configured target.
// *connection.Manager satisfies it.
type TargetSource interface {
	AcquireConnection(ctx context.Context) (*connection.SQLConnection, error)
	Target() connection.TargetDescriptor
}

// Service captures estimated execution plans against the source's current
// target. Each capture acquires and releases its own connection.
type Service struct {
	source TargetSource
}

// NewService creates a capture Service bound to the given target source.
func NewService(source TargetSource) *Service {
	return &Service{source: source}
}

// CaptureEstimatedPlan returns the engine's plan representation for sqlText.
// An empty return with nil error means the statement produced no plan rows,
// which is a legitimate outcome, not a failure. Nothing is retried here.
func (s *Service) CaptureEstimatedPlan(ctx context.Context, sqlText string, timeout time.Duration) (string, error) {
	if strings.TrimSpace(sqlText) == "" {
		return "", dberr.NewValidationError("sql text", "must not be empty")
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// The budget covers the whole capture, connection dial included.
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sc, err := s.source.AcquireConnection(ctx)
	if err != nil {
		return "", err
	}
	defer sc.Close()

	platform := s.source.Target().Platform
	protocol, err := protocolFor(platform, sqlText)
	if err != nil {
		return "", dberr.NewValidationError("platform", err.Error())
	}

	// Plan mode is session state, so every step must ride one session.
	session, err := sc.Session(ctx)
	if err != nil {
		return "", dberr.NewCaptureError(sqlText, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("Unable to release plan capture session: %s", err.Error())
		}
	}()

	for _, stmt := range protocol.setup {
		if _, err := session.ExecContext(ctx, stmt); err != nil {
			// Plan mode was never entered, no cleanup owed.
			return "", captureFailure(ctx, sqlText, err)
		}
	}

	// Plan mode is now on. The disable step is deferred so it runs on every
	// exit path, on its own deadline: caller cancellation cannot skip it. A
	// cleanup failure is logged but never replaces the primary error.
	defer func() {
		for _, stmt := range protocol.cleanup {
			cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), cleanupTimeout)
			if _, err := session.ExecContext(cleanupCtx, stmt); err != nil {
				log.Warn("Plan mode cleanup statement failed: %s", err.Error())
			}
			cancelCleanup()
		}
	}()

	payload, execErr := readPlanPayload(ctx, session, protocol)
	if execErr != nil {
		return "", captureFailure(ctx, sqlText, execErr)
	}

	if protocol.isJSON && payload != "" {
		if err := ValidateJSONPlan(payload); err != nil {
			return "", dberr.NewCaptureError(sqlText, fmt.Errorf("engine returned malformed plan payload: %w", err))
		}
	}

	return payload, nil
}

// readPlanPayload runs the plan query and interprets the first column of the
// result as the plan payload. Engines that emit line-oriented plans
// contribute one line per row.
func readPlanPayload(ctx context.Context, session *sqlx.Conn, protocol planProtocol) (string, error) {
	rows, err := session.QueryxContext(ctx, protocol.query)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = rows.Close()
	}()

	var lines []string
	for rows.Next() {
		columns, err := rows.SliceScan()
		if err != nil {
			return "", err
		}
		if len(columns) == 0 {
			continue
		}
		lines = append(lines, columnText(columns[0]))
		if !protocol.multiRow {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	// No rows under plan mode is absence, not an error.
	return strings.Join(lines, "\n"), nil
}

func columnText(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []byte:
		return string(value)
	case sql.RawBytes:
		return string(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}

// captureFailure types an error from the capture path: deadline expiry is a
// TimeoutError, everything else surfaces as a CaptureError carrying the
// engine's message.
func captureFailure(ctx context.Context, sqlText string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return dberr.NewTimeoutError("plan capture", err)
	}
	return dberr.NewCaptureError(sqlText, err)
}
