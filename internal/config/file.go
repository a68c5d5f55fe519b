package config

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File mirrors the YAML configuration document.
//
//	target:
//	  ip: 192.168.0.10
//	  ports: "20-25,53,80,443"
//	scan_options:
//	  timeout: 1.0
//	  mode: SYN
//	  randomize_order: false
//	  timing_jitter: {min: 0.1, max: 0.3}
//	advanced:
//	  service_detection: true
//	logging:
//	  console_output: all
//
// Optional scalars are pointers so that Apply can tell "absent" from a zero
// value and leave the corresponding default or CLI value untouched.
type File struct {
	Target      TargetSection      `yaml:"target"`
	ScanOptions ScanOptionsSection `yaml:"scan_options"`
	Advanced    AdvancedSection    `yaml:"advanced"`
	Logging     LoggingSection     `yaml:"logging"`
}

// TargetSection is the "target" block.
type TargetSection struct {
	IP    string   `yaml:"ip"`
	Ports PortSpec `yaml:"ports"`
}

// ScanOptionsSection is the "scan_options" block.
type ScanOptionsSection struct {
	Timeout        *Seconds      `yaml:"timeout"`
	Mode           string        `yaml:"mode"`
	RandomizeOrder *bool         `yaml:"randomize_order"`
	TimingJitter   JitterSection `yaml:"timing_jitter"`
}

// JitterSection is the "scan_options.timing_jitter" block.
type JitterSection struct {
	Min *Seconds `yaml:"min"`
	Max *Seconds `yaml:"max"`
}

// AdvancedSection is the "advanced" block.
type AdvancedSection struct {
	ServiceDetection *bool    `yaml:"service_detection"`
	ServiceTimeout   *Seconds `yaml:"service_timeout"`
	ProtocolHandlers *bool    `yaml:"protocol_handlers"`
	Workers          *int     `yaml:"workers"`
	Proxy            string   `yaml:"proxy"`
	UserAgent        string   `yaml:"user_agent"`
}

// LoggingSection is the "logging" block.
type LoggingSection struct {
	ConsoleOutput string `yaml:"console_output"`
	Verbose       *bool  `yaml:"verbose"`
	Format        string `yaml:"format"`
}

// PortSpec is a port specification. In YAML it may be written as a string
// ("20-25,80"), a bare number (80) or a sequence ([22, "80-81"]).
type PortSpec string

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PortSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*p = PortSpec(strings.TrimSpace(node.Value))
		return nil
	case yaml.SequenceNode:
		parts := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: ports list must contain numbers or ranges", item.Line)
			}
			parts = append(parts, strings.TrimSpace(item.Value))
		}
		*p = PortSpec(strings.Join(parts, ","))
		return nil
	default:
		return fmt.Errorf("line %d: ports must be a string, number or list", node.Line)
	}
}

// Seconds is a duration written as a (possibly fractional) number of
// seconds, e.g. 0.25.
type Seconds float64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Seconds) UnmarshalYAML(node *yaml.Node) error {
	var v float64
	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("line %d: expected seconds as a number: %w", node.Line, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("line %d: seconds must be finite", node.Line)
	}
	*s = Seconds(v)
	return nil
}

// Duration converts s to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// Apply copies every value present in the file onto cfg. Values absent from
// the file keep whatever cfg already holds. A missing or unknown scan mode
// falls back to SYN and is reported on logger.
func (f *File) Apply(cfg *Config, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	if f.Target.IP != "" {
		cfg.TargetIP = strings.TrimSpace(f.Target.IP)
	}
	if f.Target.Ports != "" {
		cfg.Ports = string(f.Target.Ports)
	}

	opts := f.ScanOptions
	if opts.Timeout != nil {
		cfg.Timeout = opts.Timeout.Duration()
	}
	if opts.Mode == "" {
		logger.Warn("scan mode not set in config file, using SYN")
		cfg.Mode = ModeSYN
	} else if mode, err := ParseScanMode(opts.Mode); err != nil {
		logger.Warn("unsupported scan mode in config file, using SYN", "mode", opts.Mode)
		cfg.Mode = ModeSYN
	} else {
		cfg.Mode = mode
	}
	if opts.RandomizeOrder != nil {
		cfg.RandomizeOrder = *opts.RandomizeOrder
	}
	if opts.TimingJitter.Min != nil {
		cfg.JitterMin = opts.TimingJitter.Min.Duration()
	}
	if opts.TimingJitter.Max != nil {
		cfg.JitterMax = opts.TimingJitter.Max.Duration()
	}

	adv := f.Advanced
	if adv.ServiceDetection != nil {
		cfg.ServiceDetection = *adv.ServiceDetection
	}
	if adv.ServiceTimeout != nil {
		cfg.ServiceTimeout = adv.ServiceTimeout.Duration()
	}
	if adv.ProtocolHandlers != nil {
		cfg.ProtocolHandlers = *adv.ProtocolHandlers
	}
	if adv.Workers != nil {
		cfg.Workers = *adv.Workers
	}
	if adv.Proxy != "" {
		cfg.ProxyAddress = adv.Proxy
	}
	if adv.UserAgent != "" {
		cfg.UserAgent = adv.UserAgent
	}

	logs := f.Logging
	if logs.ConsoleOutput != "" {
		cfg.ConsoleOutput = ConsoleOutput(strings.ToLower(strings.TrimSpace(logs.ConsoleOutput)))
	}
	if logs.Verbose != nil {
		cfg.Verbose = *logs.Verbose
	}
	if logs.Format != "" {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(logs.Format))
	}
}
