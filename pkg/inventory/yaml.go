package inventory

import (
	"gopkg.in/yaml.v3"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
)

type yamlGroup struct {
	Children map[string]yamlGroup      `yaml:"children"`
	Hosts    map[string]map[string]any `yaml:"hosts"`
	Vars     map[string]any            `yaml:"vars"`
}

type yamlRoot struct {
	All yamlGroup `yaml:"all"`
}

func parseYAML(file string, data []byte) (*Inventory, error) {
	var r yamlRoot
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, &errs.ConfigError{File: file, Msg: "cannot parse inventory", Err: err}
	}
	inv := newInventory(file)
	if err := inv.addYAMLGroup("all", r.All); err != nil {
		return nil, err
	}
	if err := inv.validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

func (i *Inventory) addYAMLGroup(name string, yg yamlGroup) error {
	g := i.ensureGroup(name)
	for k, v := range yg.Vars {
		g.vars[k] = v
	}
	for hostName, hv := range yg.Hosts {
		if err := i.addHost(name, hostName, hv); err != nil {
			return err
		}
	}
	for childName, child := range yg.Children {
		g.children = append(g.children, childName)
		if err := i.addYAMLGroup(childName, child); err != nil {
			return err
		}
	}
	return nil
}
