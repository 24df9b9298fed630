// Package property upserts name/value records in XML property-list
// documents such as Hadoop's core-site.xml.
//
// A document is a root container holding <property> records, each with a
// <name> and a <value> child:
//
//	<configuration>
//		<property>
//			<name>fs.defaultFS</name>
//			<value>hdfs://namenode/</value>
//		</property>
//	</configuration>
package property

import (
	"strings"
)

// Property is a name/value pair, used both for records and for assignments.
type Property struct {
	Name  string `yaml:"name" toml:"name" json:"name"`
	Value string `yaml:"value" toml:"value" json:"value"`
}

// Skipped describes a record that was left untouched because it is malformed.
type Skipped struct {
	// Position is the zero-based index of the record among all records.
	Position int
	// Name is the record name, empty when it could not be read.
	Name string
	// Reason explains why the record was skipped.
	Reason string
}

// Result is the outcome of Apply.
type Result struct {
	// Content is the canonical rendering of the merged document.
	Content string
	// Updated lists names whose existing record was overwritten in place.
	Updated []string
	// Added lists names appended as new records, in assignment order.
	Added []string
	// Skipped lists malformed records that were passed through.
	Skipped []Skipped
	// Recovered is set when the input did not parse and an empty container
	// was used instead.
	Recovered bool
	// ParseError is the reason the input was discarded, if Recovered.
	ParseError error
}

// Apply upserts assignments into document.
//
// The first record whose trimmed name equals an assigned name gets its value
// replaced in place; later records with the same name are left alone. Names
// with no matching record are appended in assignment order. When a name is
// assigned more than once the last value wins and the first position is
// kept. An absent or unparseable document starts from an empty container.
func Apply(document string, assignments []Property) Result {
	var res Result

	root, err := parseOrEmpty(document)
	if err != nil {
		res.Recovered = true
		res.ParseError = err
	}

	order, values := collapse(assignments)
	resolved := make(map[string]bool, len(order))

	position := 0
	root.walk(func(e *element) {
		if e.name.Local != recordElement {
			return
		}
		defer func() { position++ }()

		nameEl := e.child(nameElement)
		if nameEl == nil || len(nameEl.children) > 0 {
			res.Skipped = append(res.Skipped, Skipped{Position: position, Reason: "missing or malformed <name>"})
			return
		}
		name := strings.TrimSpace(nameEl.text)
		if name == "" {
			res.Skipped = append(res.Skipped, Skipped{Position: position, Reason: "empty <name>"})
			return
		}

		value, assigned := values[name]
		if !assigned || resolved[name] {
			return
		}

		valueEl := e.child(valueElement)
		if valueEl == nil {
			res.Skipped = append(res.Skipped, Skipped{Position: position, Name: name, Reason: "missing <value>"})
			return
		}
		valueEl.setText(value)
		resolved[name] = true
		res.Updated = append(res.Updated, name)
	})

	for _, name := range order {
		if resolved[name] {
			continue
		}
		record := newElement(recordElement)
		nameEl := newElement(nameElement)
		nameEl.setText(name)
		valueEl := newElement(valueElement)
		valueEl.setText(values[name])
		record.appendChild(nameEl)
		record.appendChild(valueEl)
		root.appendChild(record)
		res.Added = append(res.Added, name)
	}

	res.Content = render(root)
	return res
}

// Lookup returns the value of the first well-formed record named name.
func Lookup(document, name string) (string, bool) {
	root, err := parse(document)
	if err != nil {
		return "", false
	}

	var (
		value string
		found bool
	)
	root.walk(func(e *element) {
		if found || e.name.Local != recordElement {
			return
		}
		nameEl := e.child(nameElement)
		valueEl := e.child(valueElement)
		if nameEl == nil || valueEl == nil {
			return
		}
		if strings.TrimSpace(nameEl.text) == name {
			value, found = valueEl.text, true
		}
	})
	return value, found
}

// Records returns the well-formed records of document in document order.
func Records(document string) ([]Property, error) {
	root, err := parse(document)
	if err != nil {
		return nil, err
	}

	var records []Property
	root.walk(func(e *element) {
		if e.name.Local != recordElement {
			return
		}
		nameEl := e.child(nameElement)
		valueEl := e.child(valueElement)
		if nameEl == nil || valueEl == nil {
			return
		}
		records = append(records, Property{Name: strings.TrimSpace(nameEl.text), Value: valueEl.text})
	})
	return records, nil
}

func parseOrEmpty(document string) (*element, error) {
	if strings.TrimSpace(document) == "" {
		return newElement(RootElement), nil
	}
	root, err := parse(document)
	if err != nil {
		return newElement(RootElement), err
	}
	return root, nil
}

// collapse returns assigned names in first-seen order with their last value.
func collapse(assignments []Property) ([]string, map[string]string) {
	order := make([]string, 0, len(assignments))
	values := make(map[string]string, len(assignments))
	for _, a := range assignments {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		if _, seen := values[name]; !seen {
			order = append(order, name)
		}
		values[name] = a.Value
	}
	return order, values
}
