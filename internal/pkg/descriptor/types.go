package descriptor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// AgentType 是 expert 的处理方式。
type AgentType string

const (
	AgentStructured   AgentType = "structured"
	AgentUnstructured AgentType = "unstructured"
)

var structuredPattern = regexp.MustCompile(`structured-([a-zA-Z0-9_]+)`)

// Binding is one parsed descriptor-type entry of an expert.
type Binding struct {
	Name       string
	Type       AgentType
	DBType     Kind
	Connection Connection
}

// ParseTypes parses entries such as
// "orders:structured-mysql:host:db:port:3306:user:u:password:p:database:shop"
// or "docs:unstructured", separated by ';'.
func ParseTypes(s string) ([]Binding, error) {
	var out []Binding
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid descriptor type %q", entry)
		}

		b := Binding{Name: parts[0]}
		if m := structuredPattern.FindStringSubmatch(parts[1]); m != nil && !strings.HasPrefix(parts[1], "unstructured") {
			b.Type = AgentStructured
			b.DBType = Kind(m[1])
			if !b.DBType.Relational() {
				return nil, fmt.Errorf("unsupported database type %q in %q", m[1], parts[0])
			}
		} else if strings.Contains(parts[1], "unstructured") {
			b.Type = AgentUnstructured
		} else {
			return nil, fmt.Errorf("unknown descriptor type %q in %q", parts[1], parts[0])
		}

		md := make(map[string]any)
		for i := 2; i+1 < len(parts); i += 2 {
			key, value := parts[i], parts[i+1]
			if key == "port" {
				if _, err := strconv.Atoi(value); err != nil {
					continue
				}
			}
			md[key] = value
		}
		b.Connection = ConnectionFromMetadata(b.DBType, md)
		out = append(out, b)
	}
	return out, nil
}

// Primary picks the binding an expert drives: the first structured entry,
// else the first unstructured one.
func Primary(bindings []Binding) (Binding, bool) {
	for _, b := range bindings {
		if b.Type == AgentStructured {
			return b, true
		}
	}
	for _, b := range bindings {
		if b.Type == AgentUnstructured {
			return b, true
		}
	}
	return Binding{}, false
}
