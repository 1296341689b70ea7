package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/theory-cloud/columntheory/pkg/query"
)

// requestDoc is the YAML form of a find request:
//
//	where: {amount: {gt: 100}}
//	attributes: [id, name]
//	include:
//	  - as: orders
//	    where: {status: open}
//	order: [-createdAt, id]
//	limit: 10
type requestDoc struct {
	Where      map[string]any `yaml:"where"`
	Attributes []string       `yaml:"attributes"`
	Include    []includeDoc   `yaml:"include"`
	Order      []string       `yaml:"order"`
	Group      []string       `yaml:"group"`
	Limit      int            `yaml:"limit"`
	Offset     int            `yaml:"offset"`
	Distinct   bool           `yaml:"distinct"`
}

type includeDoc struct {
	Where      map[string]any `yaml:"where"`
	Entity     string         `yaml:"entity"`
	As         string         `yaml:"as"`
	Attributes []string       `yaml:"attributes"`
	Include    []includeDoc   `yaml:"include"`
	Required   bool           `yaml:"required"`
}

func readRequest(path string) (query.FindRequest, error) {
	if path == "" {
		return query.FindRequest{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return query.FindRequest{}, fmt.Errorf("read request: %w", err)
	}
	return parseRequest(data)
}

func parseRequest(data []byte) (query.FindRequest, error) {
	var doc requestDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return query.FindRequest{}, fmt.Errorf("parse request: %w", err)
	}

	req := query.FindRequest{
		Where:      doc.Where,
		Attributes: doc.Attributes,
		Include:    includes(doc.Include),
		Group:      doc.Group,
		Limit:      doc.Limit,
		Offset:     doc.Offset,
		Distinct:   doc.Distinct,
	}
	for _, o := range doc.Order {
		// A leading "-" sorts descending.
		if field, ok := strings.CutPrefix(o, "-"); ok {
			req.Order = append(req.Order, query.Desc(field))
		} else {
			req.Order = append(req.Order, query.Asc(o))
		}
	}
	return req, nil
}

func includes(docs []includeDoc) []query.Include {
	if len(docs) == 0 {
		return nil
	}
	out := make([]query.Include, len(docs))
	for i, d := range docs {
		out[i] = query.Include{
			Where:      d.Where,
			Entity:     d.Entity,
			As:         d.As,
			Attributes: d.Attributes,
			Include:    includes(d.Include),
			Required:   d.Required,
		}
	}
	return out
}
