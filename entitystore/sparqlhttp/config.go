// Package sparqlhttp implements the store connection over the SPARQL 1.1
// HTTP protocol with GraphDB-style transaction endpoints.
package sparqlhttp

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the endpoint settings of one repository connection.
type Config struct {
	BaseURL    string        `env:"SPARQL_BASE_URL" envDefault:"http://localhost:7200"`
	Repository string        `env:"SPARQL_REPOSITORY" envDefault:"entities"`
	Username   string        `env:"SPARQL_USERNAME"`
	Password   string        `env:"SPARQL_PASSWORD"`
	Timeout    time.Duration `env:"SPARQL_TIMEOUT" envDefault:"30s"`
}

// ConfigFromEnv reads the connection settings from the environment.
func ConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parsing sparql connection config: %w", err)
	}

	return cfg, nil
}

func (c Config) queryURL() string {
	return c.BaseURL + "/repositories/" + c.Repository
}

func (c Config) updateURL() string {
	return c.BaseURL + "/repositories/" + c.Repository + "/statements"
}

func (c Config) transactionsURL() string {
	return c.BaseURL + "/repositories/" + c.Repository + "/transactions"
}
