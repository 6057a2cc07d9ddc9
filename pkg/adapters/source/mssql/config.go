package mssql

import "fmt"

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string

	// Connection options
	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromMap creates a Config from a generic connection map.
func FromMap(connection map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort(),
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout(),
	}

	if host, ok := connection["host"].(string); ok {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if port, ok := connection["port"].(float64); ok { // JSON numbers are float64
		cfg.Port = int(port)
	} else if port, ok := connection["port"].(int); ok {
		cfg.Port = port
	}

	if user, ok := connection["user"].(string); ok {
		cfg.Username = user
	} else {
		return nil, fmt.Errorf("user is required")
	}

	if password, ok := connection["password"].(string); ok {
		cfg.Password = password
	}

	if database, ok := connection["database"].(string); ok {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	if encrypt, ok := connection["encrypt"].(bool); ok {
		cfg.Encrypt = encrypt
	}
	if trust, ok := connection["trust_server_certificate"].(bool); ok {
		cfg.TrustServerCertificate = trust
	}

	return cfg, nil
}
