package entitystore

import (
	"strings"
)

// PrefixMap maps namespace prefixes to namespace IRIs. It renders the PREFIX
// preamble that is prepended to every query and update statement, and shrinks
// the full IRIs found in query results back to the prefixed names used by
// attribute schemas.
type PrefixMap struct {
	order      []string
	namespaces map[string]string
}

// NewPrefixMap creates an empty prefix map.
func NewPrefixMap() *PrefixMap {
	return &PrefixMap{namespaces: make(map[string]string)}
}

// DefaultPrefixes returns the prefixes every statement needs regardless of
// the record vocabulary: rdf, rdfs, xsd and dcterms (provenance).
func DefaultPrefixes() *PrefixMap {
	p := NewPrefixMap()
	p.Register("rdf", "http://www.w3.org/1999/02/22-rdf-syntax-ns#")
	p.Register("rdfs", "http://www.w3.org/2000/01/rdf-schema#")
	p.Register("xsd", "http://www.w3.org/2001/XMLSchema#")
	p.Register("dcterms", "http://purl.org/dc/terms/")

	return p
}

// Register adds or replaces a prefix binding.
func (p *PrefixMap) Register(prefix, namespace string) {
	if _, exists := p.namespaces[prefix]; !exists {
		p.order = append(p.order, prefix)
	}
	p.namespaces[prefix] = namespace
}

// Expand resolves a prefixed name to a full IRI.
func (p *PrefixMap) Expand(q QName) (string, bool) {
	prefix, local, found := strings.Cut(string(q), ":")
	if !found {
		return "", false
	}
	ns, ok := p.namespaces[prefix]
	if !ok {
		return "", false
	}

	return ns + local, true
}

// Shrink turns a full IRI into a prefixed name using the longest matching
// namespace.
func (p *PrefixMap) Shrink(full string) (QName, bool) {
	bestPrefix := ""
	bestLen := 0
	for prefix, ns := range p.namespaces {
		if strings.HasPrefix(full, ns) && len(ns) > bestLen {
			bestPrefix = prefix
			bestLen = len(ns)
		}
	}
	if bestLen == 0 {
		return "", false
	}

	return QName(bestPrefix + ":" + full[bestLen:]), true
}

// Preamble renders the PREFIX declarations in registration order.
func (p *PrefixMap) Preamble() string {
	var sb strings.Builder
	for _, prefix := range p.order {
		sb.WriteString("PREFIX ")
		sb.WriteString(prefix)
		sb.WriteString(": <")
		sb.WriteString(p.namespaces[prefix])
		sb.WriteString(">\n")
	}

	return sb.String()
}
