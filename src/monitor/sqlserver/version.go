package sqlserver

import (
	"context"
	"regexp"

	"github.com/blang/semver/v4"
	"github.com/newrelic/infra-integrations-sdk/v3/log"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/connection"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/dberr"
)

const versionRegexPattern = `\b(\d+\.\d+\.\d+)\b`

// queryStoreMinMajorVersion is SQL Server 2016, the first release with the
// Query Store runtime stats views.
const queryStoreMinMajorVersion = 13

var versionRegex = regexp.MustCompile(versionRegexPattern)

// serverVersion extracts the semantic version from the @@VERSION banner.
func serverVersion(ctx context.Context, conn *connection.SQLConnection) (semver.Version, error) {
	rows, err := conn.QueryxContext(ctx, serverVersionQuery)
	if err != nil {
		return semver.Version{}, dberr.NewEngineError("server version", err)
	}
	defer rows.Close()

	var banner string
	if rows.Next() {
		if err := rows.Scan(&banner); err != nil {
			return semver.Version{}, dberr.NewEngineError("server version", err)
		}
	}
	if banner == "" {
		return semver.Version{}, dberr.NewEngineError("server version", dberr.ErrNotFound)
	}
	log.Debug("Server version banner: %s", banner)

	versionStr := versionRegex.FindString(banner)
	if versionStr == "" {
		return semver.Version{}, dberr.NewEngineError("server version", dberr.ErrNotFound)
	}

	version, err := semver.ParseTolerant(versionStr)
	if err != nil {
		return semver.Version{}, dberr.NewEngineError("server version", err)
	}
	return version, nil
}

func supportsQueryStore(version semver.Version) bool {
	return version.Major >= queryStoreMinMajorVersion
}
