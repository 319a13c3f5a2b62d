package transport

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

// codecName identifies the codec registered below. It is distinct from
// grpc-go's built-in "proto" codec name because our messages only
// satisfy protoadapt.MessageV1 (Reset/String/ProtoMessage), not the
// descriptor-backed protoreflect.ProtoMessage the built-in codec
// requires.
const codecName = "flowgate-legacy-proto"

type legacyProtoCodec struct{}

func (legacyProtoCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(protoadapt.MessageV1)
	if !ok {
		return nil, fmt.Errorf("transport: %T does not implement the legacy proto.Message interface", v)
	}
	return proto.Marshal(protoadapt.MessageV2Of(m))
}

func (legacyProtoCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(protoadapt.MessageV1)
	if !ok {
		return fmt.Errorf("transport: %T does not implement the legacy proto.Message interface", v)
	}
	return proto.Unmarshal(data, protoadapt.MessageV2Of(m))
}

func (legacyProtoCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(legacyProtoCodec{})
}
