package runtime

import (
	"errors"
	"sort"
	"testing"

	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
)

func TestTypeRegistryPointerPrototype(t *testing.T) {
	registry := newTypeRegistry()
	registry.Register(&testCustomer{})

	instance, err := registry.New("*runtime.testCustomer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	customer, ok := instance.(*testCustomer)
	if !ok {
		t.Fatalf("expected *testCustomer, got %T", instance)
	}
	if customer.ID != 0 || customer.Name != "" {
		t.Fatalf("expected zero instance, got %+v", customer)
	}
}

func TestTypeRegistryValuePrototype(t *testing.T) {
	registry := newTypeRegistry()
	registry.Register(customerCriteria{})

	instance, err := registry.New("runtime.customerCriteria")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := instance.(customerCriteria); !ok {
		t.Fatalf("expected value instance, got %T", instance)
	}
}

func TestTypeRegistryUnknownType(t *testing.T) {
	registry := newTypeRegistry()

	_, err := registry.New("*runtime.testCustomer")
	if !errors.Is(err, errspkg.ErrTypeNotRegistered) {
		t.Fatalf("expected type not registered error, got %v", err)
	}
}

func TestTypeRegistryFreshInstances(t *testing.T) {
	registry := newTypeRegistry()
	registry.Register(&testCustomer{})

	first, _ := registry.New("*runtime.testCustomer")
	second, _ := registry.New("*runtime.testCustomer")

	if first.(*testCustomer) == second.(*testCustomer) {
		t.Fatal("expected distinct instances on every materialization")
	}
}

func TestTypeRegistryNames(t *testing.T) {
	registry := newTypeRegistry()
	registry.Register(&testCustomer{}, customerCriteria{}, nil)
	registry.Register(&testCustomer{}) // duplicate is a no-op

	names := registry.Names()
	sort.Strings(names)
	want := []string{"*runtime.testCustomer", "runtime.customerCriteria"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}

	if !registry.Has("runtime.customerCriteria") {
		t.Error("expected criteria type to be registered")
	}
	if registry.Has("runtime.unknown") {
		t.Error("unexpected unknown type")
	}
}
