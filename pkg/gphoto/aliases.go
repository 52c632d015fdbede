package gphoto

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadAliases reads a YAML alias-table override for the setting resolver:
//
//	iso:
//	  - iso
//	  - iso speed
//	aperture:
//	  - f-number
//
// Entries replace the built-in list for that generic name; names absent from
// the file keep their defaults.
func LoadAliases(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read aliases file %s failed", path)
	}
	aliases := make(map[string][]string)
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, errors.Wrapf(err, "parse aliases file %s failed", path)
	}
	return aliases, nil
}
