package runtime

import (
	"encoding/base64"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"

	envelopepkg "github.com/drblury/portalflow/internal/runtime/envelope"
	jsoncodec "github.com/drblury/portalflow/internal/runtime/jsoncodec"
)

// Payload content types carried in envelope datacontenttype.
const (
	ContentTypeJSON     = "application/json"
	ContentTypeProtobuf = "application/protobuf"
)

// encodePayload writes value onto the envelope. Protobuf messages travel as
// binary in data_base64; everything else is sonic-encoded JSON in data.
func encodePayload(env envelopepkg.Envelope, value any) (envelopepkg.Envelope, error) {
	if value == nil {
		return env, nil
	}

	env = env.WithSubject(TypeName(value))

	if msg, ok := value.(proto.Message); ok {
		raw, err := proto.Marshal(msg)
		if err != nil {
			return env, fmt.Errorf("marshal protobuf payload: %w", err)
		}
		encoded := base64.StdEncoding.EncodeToString(raw)
		env.DataBase64 = &encoded
		return env.WithDataContentType(ContentTypeProtobuf), nil
	}

	raw, err := jsoncodec.Marshal(value)
	if err != nil {
		return env, fmt.Errorf("marshal payload: %w", err)
	}
	env.Data = raw
	return env.WithDataContentType(ContentTypeJSON), nil
}

// decodePayload materializes the envelope payload through the type registry.
// The result is always a fresh instance, never the sender's. Returns nil when
// the envelope carries no payload.
func decodePayload(env envelopepkg.Envelope, types *typeRegistry) (any, error) {
	if env.Subject == nil {
		return nil, nil
	}

	rt, err := types.Lookup(*env.Subject)
	if err != nil {
		return nil, err
	}

	// Decode into an addressable instance; unwrap afterwards for types
	// registered by value.
	pointer := rt.Kind() == reflect.Pointer
	var holder reflect.Value
	if pointer {
		holder = reflect.New(rt.Elem())
	} else {
		holder = reflect.New(rt)
	}

	if env.DataBase64 != nil {
		msg, ok := holder.Interface().(proto.Message)
		if !ok {
			return nil, fmt.Errorf("type %s does not accept protobuf payloads", *env.Subject)
		}
		raw, err := base64.StdEncoding.DecodeString(*env.DataBase64)
		if err != nil {
			return nil, fmt.Errorf("decode protobuf payload: %w", err)
		}
		if err := proto.Unmarshal(raw, msg); err != nil {
			return nil, fmt.Errorf("unmarshal protobuf payload: %w", err)
		}
	} else if env.Data != nil {
		if err := jsoncodec.Unmarshal(env.Data, holder.Interface()); err != nil {
			return nil, fmt.Errorf("unmarshal payload into %s: %w", *env.Subject, err)
		}
	}

	if pointer {
		return holder.Interface(), nil
	}
	return holder.Elem().Interface(), nil
}
