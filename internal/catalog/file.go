package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileRoom is a room as written in a catalog file. A plaintext password is
// hashed on load; password_hash may be given instead.
type fileRoom struct {
	Room     `yaml:",inline"`
	Password string `yaml:"password,omitempty"`
}

type fileCatalog struct {
	Rooms []fileRoom `yaml:"rooms"`
}

// LoadFile reads a YAML catalog file into an in-memory catalog.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Memory, error) {
	var doc fileCatalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	m := NewMemory()
	seen := make(map[int64]bool, len(doc.Rooms))
	for _, fr := range doc.Rooms {
		if seen[fr.ID] {
			return nil, fmt.Errorf("duplicate room id %d in catalog", fr.ID)
		}
		seen[fr.ID] = true

		if fr.Password != "" {
			if fr.PasswordHash != "" {
				return nil, fmt.Errorf("room %d sets both password and password_hash", fr.ID)
			}
			hash, err := HashPassword(fr.Password)
			if err != nil {
				return nil, fmt.Errorf("failed to hash password for room %d: %w", fr.ID, err)
			}
			fr.PasswordHash = hash
		}
		m.Put(fr.Room)
	}
	return m, nil
}
