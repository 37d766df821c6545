package access

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a permission table from a YAML file of the form
//
//	roles:
//	  SUPER_ADMIN:
//	    level: 1
//	    permissions:
//	      agencies: [create, read]
//
// Resource order in the file is kept as the navigation order.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read permissions file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Table from YAML bytes. See LoadFile for the format.
func Parse(data []byte) (*Table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse permissions: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("parse permissions: empty document")
	}

	rolesNode := mappingValue(doc.Content[0], "roles")
	if rolesNode == nil || rolesNode.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse permissions: missing roles mapping")
	}

	var configs []RoleConfig
	for i := 0; i+1 < len(rolesNode.Content); i += 2 {
		name := rolesNode.Content[i].Value
		role, ok := ParseRole(name)
		if !ok {
			return nil, fmt.Errorf("parse permissions: unknown role %q (line %d)", name, rolesNode.Content[i].Line)
		}
		rc, err := parseRole(role, rolesNode.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("parse permissions: role %s: %w", name, err)
		}
		configs = append(configs, rc)
	}

	return NewTable(configs)
}

func parseRole(role Role, node *yaml.Node) (RoleConfig, error) {
	rc := RoleConfig{Role: role}
	if node.Kind != yaml.MappingNode {
		return rc, fmt.Errorf("expected mapping at line %d", node.Line)
	}

	if lvl := mappingValue(node, "level"); lvl != nil {
		if err := lvl.Decode(&rc.Level); err != nil {
			return rc, fmt.Errorf("level: %w", err)
		}
	}

	perms := mappingValue(node, "permissions")
	if perms == nil {
		return rc, nil
	}
	if perms.Kind != yaml.MappingNode {
		return rc, fmt.Errorf("permissions: expected mapping at line %d", perms.Line)
	}
	for i := 0; i+1 < len(perms.Content); i += 2 {
		resource := perms.Content[i].Value
		var actions []string
		if v := perms.Content[i+1]; !(v.Kind == yaml.ScalarNode && v.Tag == "!!null") {
			if err := v.Decode(&actions); err != nil {
				return rc, fmt.Errorf("resource %s: %w", resource, err)
			}
		}
		if actions == nil {
			actions = []string{}
		}
		rc.Grants = append(rc.Grants, Grant{Resource: resource, Actions: actions})
	}
	return rc, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
