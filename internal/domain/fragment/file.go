package fragment

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk (YAML) form of a routing table.
//
//	tenant: tenant_user:user12
//	partitions:
//	  - {store: DBVS1, database: db11, host: localhost, port: 8000}
//	rules:
//	  - {domain: academic, min_year: 1, max_year: 2, partition: DBVS1/db11}
type File struct {
	Tenant     string          `yaml:"tenant" json:"tenant"`
	Partitions []PartitionFile `yaml:"partitions" json:"partitions"`
	Rules      []RuleFile      `yaml:"rules" json:"rules"`
}

// PartitionFile describes one partition.
type PartitionFile struct {
	Store    string `yaml:"store" json:"store"`
	Database string `yaml:"database" json:"database"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
}

// RuleFile describes one fragment rule.
type RuleFile struct {
	Domain    string `yaml:"domain" json:"domain"`
	MinYear   int    `yaml:"min_year" json:"min_year"`
	MaxYear   int    `yaml:"max_year" json:"max_year"`
	Partition string `yaml:"partition" json:"partition"`
}

// LoadFile reads and validates a routing table from a YAML file.
func LoadFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fragment: read %s: %w", path, err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes and validates a routing table.
func ParseYAML(data []byte) (*Map, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fragment: decode yaml: %w", err)
	}
	return f.Build()
}

// Build converts the file form into a validated Map.
func (f File) Build() (*Map, error) {
	partitions := make([]Partition, 0, len(f.Partitions))
	for _, p := range f.Partitions {
		partitions = append(partitions, Partition{
			ID:       NewPartitionID(p.Store, p.Database),
			Store:    p.Store,
			Database: p.Database,
			Host:     p.Host,
			Port:     p.Port,
		})
	}
	rules := make([]Rule, 0, len(f.Rules))
	for _, r := range f.Rules {
		rules = append(rules, Rule{
			Domain:    Domain(r.Domain),
			MinYear:   r.MinYear,
			MaxYear:   r.MaxYear,
			Partition: PartitionID(r.Partition),
		})
	}
	return NewMap(f.Tenant, partitions, rules)
}

// File returns the serialisable form of the map.
func (m *Map) File() File {
	f := File{Tenant: m.tenant}
	for _, p := range m.Partitions() {
		f.Partitions = append(f.Partitions, PartitionFile{
			Store:    p.Store,
			Database: p.Database,
			Host:     p.Host,
			Port:     p.Port,
		})
	}
	for _, d := range Domains() {
		for _, r := range m.rules[d] {
			f.Rules = append(f.Rules, RuleFile{
				Domain:    string(r.Domain),
				MinYear:   r.MinYear,
				MaxYear:   r.MaxYear,
				Partition: string(r.Partition),
			})
		}
	}
	return f
}

// MarshalYAML renders the map as YAML.
func (m *Map) MarshalYAML() (any, error) {
	return m.File(), nil
}
