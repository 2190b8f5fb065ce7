package runtime

import (
	"context"
	"errors"
	"testing"

	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
)

func TestFindHandler(t *testing.T) {
	tests := []struct {
		name          string
		target        any
		op            Operation
		wantMissing   bool
		transactional bool
	}{
		{name: "customer create", target: &testCustomer{}, op: OperationCreate},
		{name: "customer fetch", target: &testCustomer{}, op: OperationFetch},
		{name: "customer update", target: &testCustomer{}, op: OperationUpdate},
		{name: "customer delete", target: &testCustomer{}, op: OperationDelete},
		{name: "order fetch is transactional", target: &testOrder{}, op: OperationFetch, transactional: true},
		{name: "order create missing", target: &testOrder{}, op: OperationCreate, wantMissing: true},
		{name: "report has no handlers", target: &readOnlyReport{}, op: OperationFetch, wantMissing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := findHandler(tt.target, tt.op)
			if tt.wantMissing {
				if !errspkg.IsMissingHandler(err) {
					t.Fatalf("expected missing handler error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if desc.op != tt.op {
				t.Errorf("descriptor operation = %q, want %q", desc.op, tt.op)
			}
			if desc.transactional != tt.transactional {
				t.Errorf("transactional = %v, want %v", desc.transactional, tt.transactional)
			}
		})
	}
}

func TestFindHandlerNilTarget(t *testing.T) {
	_, err := findHandler(nil, OperationFetch)
	if !errors.Is(err, errspkg.ErrTargetRequired) {
		t.Fatalf("expected target required error, got %v", err)
	}
}

func TestFindHandlerReportsTypeAndOperation(t *testing.T) {
	_, err := findHandler(&readOnlyReport{}, OperationDelete)

	var missing *errspkg.MissingHandlerError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingHandlerError, got %v", err)
	}
	if missing.ObjectType != "*runtime.readOnlyReport" {
		t.Errorf("object type = %q", missing.ObjectType)
	}
	if missing.Operation != "delete" {
		t.Errorf("operation = %q", missing.Operation)
	}
}

// embeddedBase carries the fetch handler; embedding must make it visible on
// the derived type.
type embeddedBase struct{}

func (embeddedBase) DataPortalFetch(_ context.Context, _ Criteria, _ Identity) (any, error) {
	return "from base", nil
}

type derivedType struct {
	embeddedBase
}

func TestFindHandlerFollowsEmbedding(t *testing.T) {
	desc, err := findHandler(&derivedType{}, OperationFetch)
	if err != nil {
		t.Fatalf("expected embedded handler to resolve, got %v", err)
	}

	result, err := desc.invoke(context.Background(), nil, Identity{})
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if result != "from base" {
		t.Fatalf("unexpected result %v", result)
	}
}

// perOpMarker only marks update as transactional.
type perOpMarker struct{}

func (perOpMarker) Transactional(op Operation) bool { return op == OperationUpdate }

func (perOpMarker) DataPortalFetch(_ context.Context, _ Criteria, _ Identity) (any, error) {
	return nil, nil
}

func (perOpMarker) DataPortalUpdate(_ context.Context, _ Identity) (any, error) {
	return nil, nil
}

func TestTransactionalMarkerPerOperation(t *testing.T) {
	fetch, err := findHandler(perOpMarker{}, OperationFetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetch.transactional {
		t.Error("fetch should not be transactional")
	}

	update, err := findHandler(perOpMarker{}, OperationUpdate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !update.transactional {
		t.Error("update should be transactional")
	}
}

func TestInvokeDelete(t *testing.T) {
	desc, err := findHandler(&testCustomer{}, OperationDelete)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := desc.invoke(context.Background(), customerCriteria{ID: 1}, Identity{})
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if result != nil {
		t.Fatalf("delete should return no result, got %v", result)
	}

	if _, err := desc.invoke(context.Background(), customerCriteria{ID: -1}, Identity{}); err == nil {
		t.Fatal("expected delete error for unknown customer")
	}
}
