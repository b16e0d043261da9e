package dbconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Codec is the collaborator-provided serialization and deserialization
// contract: given a path, read/write a DatabaseConfig or ResourceConfig.
// The default implementation uses gopkg.in/yaml.v3, the teacher's
// configuration-file format of choice.
type Codec interface {
	WriteDatabaseConfig(path string, c *DatabaseConfig) error
	ReadDatabaseConfig(path string) (*DatabaseConfig, error)
	WriteResourceConfig(path string, c *ResourceConfig) error
	ReadResourceConfig(path string) (*ResourceConfig, error)
}

// YAMLCodec is the default Codec, serializing to YAML files with 0640
// permissions (owner read-write, group read).
type YAMLCodec struct{}

var _ Codec = YAMLCodec{}

// WriteDatabaseConfig writes c to path as YAML.
func (YAMLCodec) WriteDatabaseConfig(path string, c *DatabaseConfig) error {
	snap := snapshot{Path: c.Path, Name: c.Name, Type: c.Type, MaxResourceID: c.MaxResourceID()}
	data, err := yaml.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("marshal database config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("write database config %s: %w", path, err)
	}
	return nil
}

// ReadDatabaseConfig reads a DatabaseConfig from path.
func (YAMLCodec) ReadDatabaseConfig(path string) (*DatabaseConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read database config %s: %w", path, err)
	}
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse database config %s: %w", path, err)
	}
	c := &DatabaseConfig{Path: snap.Path, Name: snap.Name, Type: snap.Type}
	c.maxResourceID.Store(snap.MaxResourceID)
	return c, nil
}

// WriteResourceConfig writes c to path as YAML.
func (YAMLCodec) WriteResourceConfig(path string, c *ResourceConfig) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal resource config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("write resource config %s: %w", path, err)
	}
	return nil
}

// ReadResourceConfig reads a ResourceConfig from path.
func (YAMLCodec) ReadResourceConfig(path string) (*ResourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resource config %s: %w", path, err)
	}
	var c ResourceConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse resource config %s: %w", path, err)
	}
	return &c, nil
}
