// Package args contains the argument list, defined as a struct, along with a method that validates passed-in args
package args

import (
	"errors"

	sdkArgs "github.com/newrelic/infra-integrations-sdk/v3/args"
	"github.com/newrelic/infra-integrations-sdk/v3/log"
)

// ArgumentList struct that holds all database connection arguments
type ArgumentList struct {
	sdkArgs.DefaultArgumentList
	Platform               string `default:"sqlserver" help:"Database platform to monitor. One of sqlserver, postgres, mysql, oracle"`
	Username               string `default:"" help:"The database connection user name"`
	Password               string `default:"" help:"The database connection password"`
	Hostname               string `default:"127.0.0.1" help:"The database connection host name"`
	Port                   string `default:"" help:"The database port to connect to. Only needed when instance not specified"`
	Instance               string `default:"" help:"The SQL Server instance to connect to. SQL Server only"`
	Database               string `default:"" help:"The database to connect to"`
	ServiceName            string `default:"" help:"The Oracle service name to connect to. Oracle only"`
	EnableSSL              bool   `default:"false" help:"If true will use SSL encryption, false will not use encryption"`
	TrustServerCertificate bool   `default:"false" help:"If true server certificate is not verified for SSL. If false certificate will be verified against supplied certificate"`
	CertificateLocation    string `default:"" help:"Certificate file to verify SSL encryption against"`
	Timeout                string `default:"30" help:"Timeout in seconds for a single SQL query. Set 0 for no timeout"`
	TopQueryCount          int    `default:"50" help:"Number of top queries to collect per cycle"`
	ExplainQuery           string `default:"" help:"SQL text to capture an estimated execution plan for, published alongside the telemetry"`
	HealthThresholdsFile   string `default:"" help:"Path to a YAML file overriding the default health status thresholds"`
}

// defaultPorts per platform, applied when neither port nor instance is given.
var defaultPorts = map[string]string{
	"sqlserver": "1433",
	"postgres":  "5432",
	"mysql":     "3306",
	"oracle":    "1521",
}

// Validate validates database specific arguments
func (al *ArgumentList) Validate() error {
	defaultPort, ok := defaultPorts[al.Platform]
	if !ok {
		return errors.New("invalid configuration: platform must be one of sqlserver, postgres, mysql, oracle")
	}

	if al.Username == "" {
		return errors.New("invalid configuration: must specify a username")
	}

	if al.Hostname == "" {
		return errors.New("invalid configuration: must specify a hostname")
	}

	if al.Instance != "" && al.Platform != "sqlserver" {
		return errors.New("invalid configuration: instance is only valid for the sqlserver platform")
	}

	if al.ServiceName != "" && al.Platform != "oracle" {
		return errors.New("invalid configuration: service name is only valid for the oracle platform")
	}

	if al.Port != "" && al.Instance != "" {
		return errors.New("invalid configuration: specify either port or instance but not both")
	} else if al.Port == "" && al.Instance == "" {
		log.Info("Port not specified, using default port %s for platform %s", defaultPort, al.Platform)
		al.Port = defaultPort
	}

	if al.EnableSSL && (!al.TrustServerCertificate && al.CertificateLocation == "") {
		return errors.New("invalid configuration: must specify a certificate file when using SSL and not trusting server certificate")
	}

	return nil
}
