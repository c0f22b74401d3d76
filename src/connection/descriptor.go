package connection

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/newrelic/infra-integrations-sdk/v3/log"
	go_ora "github.com/sijms/go-ora/v2"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/args"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
)

// TargetDescriptor identifies the database the manager is pointed at. The
// connection string is opaque to everything except the identity projections
// extracted by ParseIdentity.
type TargetDescriptor struct {
	Platform         models.PlatformType
	ConnectionString string
}

// Empty reports whether no target has been set.
func (d TargetDescriptor) Empty() bool {
	return d.ConnectionString == ""
}

// driverNames maps a platform to its registered database/sql driver.
var driverNames = map[models.PlatformType]string{
	models.PlatformSQLServer:  "mssql",
	models.PlatformPostgreSQL: "postgres",
	models.PlatformMySQL:      "mysql",
	models.PlatformOracle:     "oracle",
}

// DriverName returns the database/sql driver registered for the platform.
func DriverName(platform models.PlatformType) (string, error) {
	name, ok := driverNames[platform]
	if !ok {
		return "", fmt.Errorf("no driver registered for platform %q", platform)
	}
	return name, nil
}

// NewDescriptor builds a TargetDescriptor from validated arguments.
// All args should be validated before calling this.
func NewDescriptor(al *args.ArgumentList) (TargetDescriptor, error) {
	platform, err := models.ParsePlatform(al.Platform)
	if err != nil {
		return TargetDescriptor{}, err
	}

	var connectionString string
	switch platform {
	case models.PlatformSQLServer:
		connectionString = createSQLServerURL(al)
	case models.PlatformPostgreSQL:
		connectionString = createPostgresURL(al)
	case models.PlatformMySQL:
		connectionString = createMySQLDSN(al)
	case models.PlatformOracle:
		connectionString, err = createOracleURL(al)
		if err != nil {
			return TargetDescriptor{}, err
		}
	}

	return TargetDescriptor{Platform: platform, ConnectionString: connectionString}, nil
}

// createSQLServerURL tags in args and creates the connection string.
func createSQLServerURL(al *args.ArgumentList) string {
	connectionURL := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(al.Username, al.Password),
		Host:   al.Hostname,
	}

	// If port is present use port if not use instance
	if al.Port != "" {
		connectionURL.Host = fmt.Sprintf("%s:%s", connectionURL.Host, al.Port)
	} else {
		connectionURL.Path = al.Instance
	}

	query := url.Values{}
	query.Add("dial timeout", al.Timeout)
	query.Add("connection timeout", al.Timeout)
	if al.Database != "" {
		query.Add("database", al.Database)
	}

	if al.EnableSSL {
		query.Add("encrypt", "true")
		query.Add("TrustServerCertificate", strconv.FormatBool(al.TrustServerCertificate))
		if !al.TrustServerCertificate {
			query.Add("certificate", al.CertificateLocation)
		}
	}

	connectionURL.RawQuery = query.Encode()
	return connectionURL.String()
}

func createPostgresURL(al *args.ArgumentList) string {
	connectionURL := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(al.Username, al.Password),
		Host:   fmt.Sprintf("%s:%s", al.Hostname, al.Port),
		Path:   al.Database,
	}

	query := url.Values{}
	query.Add("connect_timeout", al.Timeout)
	if al.EnableSSL {
		if al.TrustServerCertificate {
			query.Add("sslmode", "require")
		} else {
			query.Add("sslmode", "verify-full")
			query.Add("sslrootcert", al.CertificateLocation)
		}
	} else {
		query.Add("sslmode", "disable")
	}

	connectionURL.RawQuery = query.Encode()
	return connectionURL.String()
}

func createMySQLDSN(al *args.ArgumentList) string {
	conf := gomysql.NewConfig()
	conf.User = al.Username
	conf.Passwd = al.Password
	conf.Net = "tcp"
	conf.Addr = fmt.Sprintf("%s:%s", al.Hostname, al.Port)
	conf.DBName = al.Database
	conf.AllowNativePasswords = true
	if timeout, err := strconv.Atoi(al.Timeout); err == nil && timeout > 0 {
		conf.Timeout = time.Duration(timeout) * time.Second
		conf.ReadTimeout = time.Duration(timeout) * time.Second
	}
	if al.EnableSSL {
		if al.TrustServerCertificate {
			conf.TLSConfig = "skip-verify"
		} else {
			conf.TLSConfig = "true"
		}
	}
	return conf.FormatDSN()
}

func createOracleURL(al *args.ArgumentList) (string, error) {
	port, err := strconv.Atoi(al.Port)
	if err != nil {
		return "", fmt.Errorf("invalid oracle port %q: %w", al.Port, err)
	}
	service := al.ServiceName
	if service == "" {
		service = al.Database
	}
	options := map[string]string{}
	if al.EnableSSL {
		options["ssl"] = "true"
		options["ssl verify"] = strconv.FormatBool(!al.TrustServerCertificate)
	}
	return go_ora.BuildUrl(al.Hostname, port, service, al.Username, al.Password, options), nil
}

// ParseIdentity extracts the human-readable server and database identities
// from a descriptor. A failure here moves the manager to the unconfigured
// state; it never fails SetTarget itself.
func ParseIdentity(d TargetDescriptor) (server, database string, err error) {
	if d.Empty() {
		return "", "", fmt.Errorf("empty connection string")
	}

	switch d.Platform {
	case models.PlatformMySQL:
		conf, err := gomysql.ParseDSN(d.ConnectionString)
		if err != nil {
			return "", "", fmt.Errorf("could not parse mysql DSN: %w", err)
		}
		return conf.Addr, conf.DBName, nil
	case models.PlatformPostgreSQL:
		// lib/pq accepts both URLs and key=value conninfo strings.
		if !strings.Contains(d.ConnectionString, "://") {
			return parseConninfoIdentity(d.ConnectionString)
		}
		return parseURLIdentity(d)
	case models.PlatformSQLServer, models.PlatformOracle:
		return parseURLIdentity(d)
	}
	return "", "", fmt.Errorf("unknown platform %q", d.Platform)
}

// parseConninfoIdentity walks a libpq conninfo string (host=... port=...
// dbname=...). Quoted values and escapes are out of scope; the descriptors
// built here never produce them.
func parseConninfoIdentity(conninfo string) (server, database string, err error) {
	var host, port string
	for _, field := range strings.Fields(conninfo) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return "", "", fmt.Errorf("malformed conninfo field %q", field)
		}
		switch key {
		case "host":
			host = value
		case "port":
			port = value
		case "dbname":
			database = value
		}
	}
	if host == "" {
		return "", "", fmt.Errorf("conninfo has no host")
	}
	server = host
	if port != "" {
		server = fmt.Sprintf("%s:%s", host, port)
	}
	return server, database, nil
}

func parseURLIdentity(d TargetDescriptor) (server, database string, err error) {
	connectionURL, err := url.Parse(d.ConnectionString)
	if err != nil {
		return "", "", fmt.Errorf("could not parse connection URL: %w", err)
	}
	if connectionURL.Host == "" {
		return "", "", fmt.Errorf("connection URL has no host")
	}

	server = connectionURL.Host
	switch d.Platform {
	case models.PlatformSQLServer:
		// The URL path holds the instance name, the database rides in the query.
		if instance := strings.TrimPrefix(connectionURL.Path, "/"); instance != "" {
			server = fmt.Sprintf("%s\\%s", connectionURL.Host, instance)
		}
		database = connectionURL.Query().Get("database")
		if database == "" {
			database = "master"
		}
	default:
		// Postgres and Oracle URLs carry the database or service in the path.
		database = strings.TrimPrefix(connectionURL.Path, "/")
	}

	if database == "" {
		log.Debug("No database found in connection URL for %s", server)
	}
	return server, database, nil
}
