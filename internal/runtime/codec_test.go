package runtime

import (
	"errors"
	"testing"

	"google.golang.org/protobuf/types/known/wrapperspb"

	envelopepkg "github.com/drblury/portalflow/internal/runtime/envelope"
	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/portalflow/internal/runtime/jsoncodec"
)

func TestEncodePayloadJSON(t *testing.T) {
	env := envelopepkg.New(envelopepkg.TypeResponse, "test")

	encoded, err := encodePayload(env, &testCustomer{ID: 9, Name: "nine"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if encoded.Subject == nil || *encoded.Subject != "*runtime.testCustomer" {
		t.Fatalf("subject = %v", encoded.Subject)
	}
	if encoded.DataContentType == nil || *encoded.DataContentType != ContentTypeJSON {
		t.Fatalf("content type = %v", encoded.DataContentType)
	}
	if encoded.Data == nil {
		t.Fatal("expected JSON data")
	}
	if encoded.DataBase64 != nil {
		t.Fatal("JSON payload must not use data_base64")
	}
}

func TestEncodePayloadNil(t *testing.T) {
	env := envelopepkg.New(envelopepkg.TypeResponse, "test")

	encoded, err := encodePayload(env, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if encoded.Subject != nil || encoded.Data != nil {
		t.Fatal("nil payload must leave the envelope empty")
	}
}

func TestDecodePayloadFreshInstance(t *testing.T) {
	types := newTypeRegistry()
	types.Register(&testCustomer{})

	original := &testCustomer{ID: 4, Name: "four"}
	env, err := encodePayload(envelopepkg.New(envelopepkg.TypeResponse, "test"), original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	// Simulate the wire hop.
	raw, err := jsoncodec.Marshal(env)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var received envelopepkg.Envelope
	if err := jsoncodec.Unmarshal(raw, &received); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	decoded, err := decodePayload(received, types)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	customer, ok := decoded.(*testCustomer)
	if !ok {
		t.Fatalf("expected *testCustomer, got %T", decoded)
	}
	if customer == original {
		t.Fatal("decoded payload must be a distinct instance")
	}
	if customer.ID != 4 || customer.Name != "four" {
		t.Fatalf("unexpected decoded value %+v", customer)
	}
}

func TestDecodePayloadValueType(t *testing.T) {
	types := newTypeRegistry()
	types.Register(customerCriteria{})

	env, err := encodePayload(envelopepkg.New(envelopepkg.TypeRequest, "test"), customerCriteria{ID: 11})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := decodePayload(env, types)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	criteria, ok := decoded.(customerCriteria)
	if !ok {
		t.Fatalf("expected value criteria, got %T", decoded)
	}
	if criteria.ID != 11 {
		t.Fatalf("unexpected criteria %+v", criteria)
	}
}

func TestDecodePayloadEmptyEnvelope(t *testing.T) {
	types := newTypeRegistry()

	decoded, err := decodePayload(envelopepkg.New(envelopepkg.TypeResponse, "test"), types)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != nil {
		t.Fatalf("expected nil payload, got %v", decoded)
	}
}

func TestDecodePayloadUnregisteredType(t *testing.T) {
	types := newTypeRegistry()

	env, err := encodePayload(envelopepkg.New(envelopepkg.TypeResponse, "test"), &testCustomer{ID: 1})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if _, err := decodePayload(env, types); !errors.Is(err, errspkg.ErrTypeNotRegistered) {
		t.Fatalf("expected type not registered error, got %v", err)
	}
}

func TestProtobufPayloadRoundTrip(t *testing.T) {
	types := newTypeRegistry()
	types.Register(&wrapperspb.StringValue{})

	env, err := encodePayload(envelopepkg.New(envelopepkg.TypeResponse, "test"), wrapperspb.String("hello"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if env.DataBase64 == nil {
		t.Fatal("expected base64 data for protobuf payload")
	}
	if env.DataContentType == nil || *env.DataContentType != ContentTypeProtobuf {
		t.Fatalf("content type = %v", env.DataContentType)
	}

	decoded, err := decodePayload(env, types)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	value, ok := decoded.(*wrapperspb.StringValue)
	if !ok {
		t.Fatalf("expected *wrapperspb.StringValue, got %T", decoded)
	}
	if value.GetValue() != "hello" {
		t.Fatalf("unexpected value %q", value.GetValue())
	}
}

func TestDecodeProtobufIntoNonProtoType(t *testing.T) {
	types := newTypeRegistry()
	types.Register(&testCustomer{})

	env, err := encodePayload(envelopepkg.New(envelopepkg.TypeResponse, "test"), wrapperspb.String("hello"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	// Claim the payload belongs to a JSON-only type.
	env = env.WithSubject("*runtime.testCustomer")

	if _, err := decodePayload(env, types); err == nil {
		t.Fatal("expected error decoding protobuf into non-proto type")
	}
}
