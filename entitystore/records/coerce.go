package records

import (
	"errors"
	"fmt"

	"github.com/graphadm/entitystore-go/entitystore"
)

// GrantMap holds a user's administrative permissions per project. The
// project membership is stored as a plain triple and each permission as an
// RDF-star annotation on it.
type GrantMap = entitystore.ObservableMap[entitystore.IRI, entitystore.QName]

// NewGrantMap creates an empty grant map.
func NewGrantMap() *GrantMap {
	return entitystore.NewObservableMap[entitystore.IRI, entitystore.QName](predHasAdminPermission)
}

// The coercion constructors below accept three raw shapes: the typed value
// itself, the lexical form read from the store, and the Native form cached
// entities are rebuilt from.

func coerceNCName(raw any) (entitystore.Value, error) {
	switch v := raw.(type) {
	case entitystore.NCName:
		return v, nil
	case string:
		return entitystore.NewNCName(v)
	default:
		return nil, badRaw(raw, "NCName")
	}
}

func coerceText(raw any) (entitystore.Value, error) {
	switch v := raw.(type) {
	case entitystore.Text:
		return v, nil
	case string:
		return entitystore.Text(v), nil
	default:
		return nil, badRaw(raw, "text")
	}
}

func coerceIRI(raw any) (entitystore.Value, error) {
	switch v := raw.(type) {
	case entitystore.IRI:
		return v, nil
	case string:
		return entitystore.NewIRI(v)
	default:
		return nil, badRaw(raw, "IRI")
	}
}

func coerceBoolean(raw any) (entitystore.Value, error) {
	switch v := raw.(type) {
	case entitystore.Boolean:
		return v, nil
	case bool:
		return entitystore.Boolean(v), nil
	case string:
		switch v {
		case "true", "1":
			return entitystore.Boolean(true), nil
		case "false", "0":
			return entitystore.Boolean(false), nil
		}
		return nil, badRaw(raw, "boolean")
	default:
		return nil, badRaw(raw, "boolean")
	}
}

func coerceDate(raw any) (entitystore.Value, error) {
	switch v := raw.(type) {
	case entitystore.Date:
		return v, nil
	case string:
		return entitystore.ParseDate(v)
	default:
		return nil, badRaw(raw, "date")
	}
}

func coerceIRISet(raw any) (entitystore.Value, error) {
	switch v := raw.(type) {
	case *entitystore.ObservableSet[entitystore.IRI]:
		return v, nil
	case entitystore.IRI:
		return entitystore.NewObservableSet(v), nil
	case string:
		iri, err := entitystore.NewIRI(v)
		if err != nil {
			return nil, err
		}
		return entitystore.NewObservableSet(iri), nil
	case []any:
		items := make([]entitystore.IRI, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, badRaw(item, "IRI")
			}
			iri, err := entitystore.NewIRI(s)
			if err != nil {
				return nil, err
			}
			items = append(items, iri)
		}
		return entitystore.NewObservableSet(items...), nil
	default:
		return nil, badRaw(raw, "IRI set")
	}
}

func coerceQNameSet(raw any) (entitystore.Value, error) {
	switch v := raw.(type) {
	case *entitystore.ObservableSet[entitystore.QName]:
		return v, nil
	case entitystore.QName:
		return entitystore.NewObservableSet(v), nil
	case string:
		return entitystore.NewObservableSet(entitystore.QName(v)), nil
	case []any:
		items := make([]entitystore.QName, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, badRaw(item, "QName")
			}
			items = append(items, entitystore.QName(s))
		}
		return entitystore.NewObservableSet(items...), nil
	default:
		return nil, badRaw(raw, "QName set")
	}
}

func coerceGrantMap(raw any) (entitystore.Value, error) {
	switch v := raw.(type) {
	case *GrantMap:
		return v, nil
	case string:
		// membership without annotations yet, seen during hydration
		iri, err := entitystore.NewIRI(v)
		if err != nil {
			return nil, err
		}
		gm := NewGrantMap()
		gm.Seed(iri)
		return gm, nil
	case []any:
		gm := NewGrantMap()
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, badRaw(item, "IRI")
			}
			iri, err := entitystore.NewIRI(s)
			if err != nil {
				return nil, err
			}
			gm.Seed(iri)
		}
		return gm, nil
	case map[string]any:
		// Native form of a cached grant map
		gm := NewGrantMap()
		for key, perms := range v {
			iri, err := entitystore.NewIRI(key)
			if err != nil {
				return nil, err
			}
			list, ok := perms.([]any)
			if !ok {
				return nil, badRaw(perms, "permission list")
			}
			elements := make([]entitystore.QName, 0, len(list))
			for _, p := range list {
				s, ok := p.(string)
				if !ok {
					return nil, badRaw(p, "permission")
				}
				elements = append(elements, entitystore.QName(s))
			}
			gm.Seed(iri, elements...)
		}
		return gm, nil
	default:
		return nil, badRaw(raw, "grant map")
	}
}

func badRaw(raw any, want string) error {
	return errors.Join(entitystore.ErrInvalidValue, fmt.Errorf("cannot use %T as %s", raw, want))
}
