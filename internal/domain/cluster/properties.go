package cluster

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/clusterprep/internal/domain/mutation"
)

// Property is one name/value pair of a property block.
type Property struct {
	Name  string `yaml:"name" toml:"name" json:"name"`
	Value string `yaml:"value" toml:"value" json:"value"`
}

// Properties is an ordered property block. In YAML it is written as a
// mapping, whose key order is kept, or as a list of {name, value} items.
// In TOML it is an array of {name, value} tables.
type Properties []Property

// UnmarshalYAML decodes a mapping or a sequence, keeping document order.
func (p *Properties) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(Properties, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: value of %q must be a scalar", v.Line, k.Value)
			}
			out = append(out, Property{Name: k.Value, Value: v.Value})
		}
		*p = out
		return nil
	case yaml.SequenceNode:
		var items []Property
		if err := node.Decode(&items); err != nil {
			return err
		}
		*p = items
		return nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*p = nil
			return nil
		}
	}
	return fmt.Errorf("line %d: expected a mapping or a list of {name, value}", node.Line)
}

// MarshalYAML encodes the block as an ordered mapping.
func (p Properties) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, prop := range p {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: prop.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: prop.Value},
		)
	}
	return node, nil
}

// Get returns the last value set for name.
func (p Properties) Get(name string) (string, bool) {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i].Name == name {
			return p[i].Value, true
		}
	}
	return "", false
}

// WithDefault returns p with name appended when it is not set yet.
func (p Properties) WithDefault(name, value string) Properties {
	if _, ok := p.Get(name); ok {
		return p
	}
	out := make(Properties, len(p), len(p)+1)
	copy(out, p)
	return append(out, Property{Name: name, Value: value})
}

// Names returns the property names in order.
func (p Properties) Names() []string {
	out := make([]string, 0, len(p))
	for _, prop := range p {
		out = append(out, prop.Name)
	}
	return out
}

// Assignments converts the block for the mutation engine.
func (p Properties) Assignments() mutation.Assignments {
	out := make(mutation.Assignments, 0, len(p))
	for _, prop := range p {
		out = append(out, mutation.Assignment{Key: prop.Name, Value: prop.Value})
	}
	return out
}

// Duration is a time.Duration written as "30s" or "5m" in YAML and TOML.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
