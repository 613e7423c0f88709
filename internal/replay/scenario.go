package replay

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/srg/blestream/pkg/stream"
	"gopkg.in/yaml.v3"
)

// DefaultPeripheral is used when neither the scenario nor a step names one
const DefaultPeripheral stream.PeripheralID = "replay"

// Scenario is a scripted trace of native peripheral callbacks
//
//	name: heart rate
//	peripheral: A1B2C3D4
//	events:
//	  - kind: notification_state_changed
//	    characteristic: 180d/2a37
//	  - kind: characteristic_value_updated
//	    characteristic: 180d/2a37
//	    value: "0048"
//	  - close: true
//	    cause: supervision timeout
type Scenario struct {
	Name       string `yaml:"name"`
	Peripheral string `yaml:"peripheral"`
	Steps      []Step `yaml:"events"`

	actions []Action
}

// Step is one scripted callback, or a close of the adapter when Close is set.
// Value is hex; leaving it out on a successful characteristic update scripts a
// callback without a value.
type Step struct {
	Kind           string        `yaml:"kind"`
	Peripheral     string        `yaml:"peripheral"`
	Service        string        `yaml:"service"`
	Characteristic string        `yaml:"characteristic"`
	Descriptor     string        `yaml:"descriptor"`
	Value          *string       `yaml:"value"`
	RSSI           int           `yaml:"rssi"`
	Error          string        `yaml:"error"`
	Close          bool          `yaml:"close"`
	Cause          string        `yaml:"cause"`
	Delay          time.Duration `yaml:"delay"`
}

// Action is a compiled Step
type Action struct {
	Event stream.NativeEvent
	Close bool
	Cause error
	Delay time.Duration
}

// StepError reports an invalid step by its position in the script
type StepError struct {
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("event #%d: %v", e.Index+1, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

var ErrEmptyScenario = errors.New("scenario has no events")

// Parse decodes and validates a YAML scenario
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, ErrEmptyScenario
	}

	sc.actions = make([]Action, 0, len(sc.Steps))
	for i, step := range sc.Steps {
		action, err := step.compile(sc.peripheral())
		if err != nil {
			return nil, &StepError{Index: i, Err: err}
		}
		sc.actions = append(sc.actions, action)
	}
	return &sc, nil
}

// Load reads and parses a scenario file
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario %s: %w", path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Actions returns the compiled steps in script order
func (sc *Scenario) Actions() []Action {
	return sc.actions
}

// ClosesAdapter reports whether the script closes the adapter itself
func (sc *Scenario) ClosesAdapter() bool {
	for _, a := range sc.actions {
		if a.Close {
			return true
		}
	}
	return false
}

func (sc *Scenario) peripheral() stream.PeripheralID {
	if sc.Peripheral == "" {
		return DefaultPeripheral
	}
	return stream.PeripheralID(sc.Peripheral)
}

func (s Step) compile(defaultPeripheral stream.PeripheralID) (Action, error) {
	action := Action{Delay: s.Delay}
	if s.Delay < 0 {
		return action, fmt.Errorf("negative delay %s", s.Delay)
	}

	if s.Close {
		if s.Kind != "" {
			return action, fmt.Errorf("close step cannot have kind %q", s.Kind)
		}
		action.Close = true
		if s.Cause != "" {
			action.Cause = errors.New(s.Cause)
		}
		return action, nil
	}

	kind, err := stream.ParseEventKind(s.Kind)
	if err != nil {
		return action, err
	}

	ev := stream.NativeEvent{
		Kind:       kind,
		Peripheral: defaultPeripheral,
		RSSI:       s.RSSI,
	}
	if s.Peripheral != "" {
		ev.Peripheral = stream.PeripheralID(s.Peripheral)
	}
	if s.Error != "" {
		ev.Err = errors.New(s.Error)
	}
	if s.Service != "" {
		ev.Service = stream.Service{UUID: stream.NormalizeUUID(s.Service)}
	}
	if s.Characteristic != "" {
		chr, ok := stream.ParseCharacteristic(s.Characteristic)
		if !ok {
			return action, fmt.Errorf("invalid characteristic %q (want service/characteristic)", s.Characteristic)
		}
		ev.Characteristic = chr
	}
	if s.Descriptor != "" {
		dsc, err := parseDescriptor(s.Descriptor)
		if err != nil {
			return action, err
		}
		ev.Descriptor = dsc
	}
	if s.Value != nil {
		value, err := hex.DecodeString(strings.ReplaceAll(*s.Value, " ", ""))
		if err != nil {
			return action, fmt.Errorf("invalid hex value %q: %w", *s.Value, err)
		}
		ev.Value = value
	}

	if err := requireSubject(ev, s); err != nil {
		return action, err
	}
	action.Event = ev
	return action, nil
}

// requireSubject checks that the attribute the kind refers to is present
func requireSubject(ev stream.NativeEvent, s Step) error {
	switch ev.Kind {
	case stream.EventIncludedServicesDiscovered, stream.EventCharacteristicsDiscovered:
		if s.Service == "" {
			return fmt.Errorf("%s requires service", ev.Kind)
		}
	case stream.EventDescriptorsDiscovered, stream.EventCharacteristicValueUpdated,
		stream.EventCharacteristicWritten, stream.EventNotificationStateChanged:
		if s.Characteristic == "" {
			return fmt.Errorf("%s requires characteristic", ev.Kind)
		}
	case stream.EventDescriptorValueUpdated, stream.EventDescriptorWritten:
		if s.Descriptor == "" {
			return fmt.Errorf("%s requires descriptor", ev.Kind)
		}
	}
	return nil
}

// parseDescriptor parses "service/characteristic/descriptor"
func parseDescriptor(s string) (stream.Descriptor, error) {
	i := strings.LastIndex(s, "/")
	if i < 0 {
		return stream.Descriptor{}, fmt.Errorf("invalid descriptor %q (want service/characteristic/descriptor)", s)
	}
	chr, ok := stream.ParseCharacteristic(s[:i])
	if !ok || s[i+1:] == "" {
		return stream.Descriptor{}, fmt.Errorf("invalid descriptor %q (want service/characteristic/descriptor)", s)
	}
	return stream.Descriptor{Characteristic: chr, UUID: stream.NormalizeUUID(s[i+1:])}, nil
}
