// Package nodeinfo builds the two discovery response formats the
// federation core hands back verbatim to callers: NodeInfo 2.x documents
// and WebFinger JRDs. Both formatters are treated as external
// collaborators; this package is the default implementation the module
// ships so it runs without a separate discovery service.
package nodeinfo

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

const logPrefix = "nodeinfo:descriptor"

// Descriptor is the static, operator-supplied half of a NodeInfo
// document: everything that does not change per request. Usage counters
// are supplied separately at request time by the registered dispatcher.
type Descriptor struct {
	SoftwareName      string   `yaml:"softwareName"`
	SoftwareVersion   string   `yaml:"softwareVersion"`
	SoftwareRepo      string   `yaml:"softwareRepository,omitempty"`
	Protocols         []string `yaml:"protocols"`
	OpenRegistrations bool     `yaml:"openRegistrations"`
}

// LoadDescriptor loads a Descriptor from the first readable path in
// paths, falling back to the NODEINFO_DESCRIPTOR_FILE environment
// variable, then to DefaultDescriptor: a paths-then-env-then-default
// bootstrap load order.
func LoadDescriptor(paths ...string) (*Descriptor, error) {
	all := make([]string, 0, len(paths)+1)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("NODEINFO_DESCRIPTOR_FILE"); envPath != "" {
		all = append(all, envPath)
	}

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var d Descriptor
		if err := yaml.Unmarshal(data, &d); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to parse %s: %v", logPrefix, p, err))
			continue
		}
		slog.Info(fmt.Sprintf("%s - loaded descriptor from %s", logPrefix, p))
		return &d, nil
	}

	slog.Info(fmt.Sprintf("%s - using default descriptor", logPrefix))
	return DefaultDescriptor(), nil
}

// DefaultDescriptor is the built-in fallback used when no descriptor
// file is configured.
func DefaultDescriptor() *Descriptor {
	return &Descriptor{
		SoftwareName:      "federation-core",
		SoftwareVersion:   "0.1.0",
		Protocols:         []string{"activitypub"},
		OpenRegistrations: false,
	}
}
