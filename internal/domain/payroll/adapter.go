package payroll

import (
	"fmt"
	"sort"
	"sync"
)

// File is a fully serialized export. Adapters return either a complete File
// or an error, never a partial one.
type File struct {
	Content  []byte
	Filename string
	MimeType string
}

type IdentityPartition struct {
	Valid   []string `json:"valid"`
	Missing []string `json:"missing"`
}

// Adapter is implemented once per external payroll system.
// ValidateEmployeeIdentities always partitions and never fails. Serialize is
// deterministic, must not modify lines and has no cancellation; callers that
// need a timeout wrap the call.
type Adapter interface {
	System() string
	Formats() []string
	ValidateEmployeeIdentities(employeeIDs []string) IdentityPartition
	Serialize(lines []Line, format string) (File, error)
}

// AdapterFactory builds an adapter bound to the system's identity mapping
// (internal employee id to external code) for one run.
type AdapterFactory func(identities map[string]string) Adapter

type Registry struct {
	mu        sync.RWMutex
	factories map[string]AdapterFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]AdapterFactory{}}
}

func (r *Registry) Register(system string, factory AdapterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[system] = factory
}

func (r *Registry) Adapter(system string, identities map[string]string) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[system]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSystem, system)
	}
	if identities == nil {
		identities = map[string]string{}
	}
	return factory(identities), nil
}

type SystemInfo struct {
	System  string   `json:"system"`
	Formats []string `json:"formats"`
}

func (r *Registry) Systems() []SystemInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SystemInfo, 0, len(r.factories))
	for system, factory := range r.factories {
		out = append(out, SystemInfo{System: system, Formats: factory(map[string]string{}).Formats()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].System < out[j].System })
	return out
}

// PartitionByMapping is the common identity check: an employee is valid when
// it has a non-empty external code that accept allows.
func PartitionByMapping(employeeIDs []string, identities map[string]string, accept func(code string) bool) IdentityPartition {
	partition := IdentityPartition{Valid: []string{}, Missing: []string{}}
	for _, employeeID := range employeeIDs {
		code, ok := identities[employeeID]
		if ok && code != "" && (accept == nil || accept(code)) {
			partition.Valid = append(partition.Valid, employeeID)
			continue
		}
		partition.Missing = append(partition.Missing, employeeID)
	}
	return partition
}

// SerializationError wraps an adapter failure so callers can match
// ErrAdapterSerialization while keeping the cause.
func SerializationError(system string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrAdapterSerialization, system, err)
}
