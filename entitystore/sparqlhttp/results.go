package sparqlhttp

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/graphadm/entitystore-go/entitystore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonTerm mirrors one bound term of the SPARQL 1.1 JSON results format.
type jsonTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype"`
	Lang     string `json:"xml:lang"`
}

type jsonResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]jsonTerm `json:"bindings"`
	} `json:"results"`
}

func decodeResults(body io.Reader) (entitystore.ResultSet, error) {
	var raw jsonResults
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return entitystore.ResultSet{}, fmt.Errorf("decoding sparql results: %w", err)
	}

	rs := entitystore.ResultSet{Vars: raw.Head.Vars}
	for _, binding := range raw.Results.Bindings {
		row := make(entitystore.ResultRow, len(binding))
		for variable, term := range binding {
			row[variable] = entitystore.BoundTerm{
				Kind:     term.Type,
				Value:    term.Value,
				Datatype: term.Datatype,
				Lang:     term.Lang,
			}
		}
		rs.Rows = append(rs.Rows, row)
	}

	return rs, nil
}
