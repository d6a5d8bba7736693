package orderv1

import (
	"testing"

	"google.golang.org/grpc/encoding"
)

func TestJSONCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	if codec == nil {
		t.Fatal("json codec must be registered")
	}

	data, err := codec.Marshal(&CreateOrderRequest{
		CustomerID: "c-1",
		Products:   []ProductQuantity{{ProductID: "p-1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"customer_id":"c-1","products":[{"product_id":"p-1","quantity":2}]}` {
		t.Fatalf("unexpected wire format: %s", data)
	}

	var decoded CreateOrderRequest
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Products[0].Quantity != 2 {
		t.Fatalf("unexpected decoded request: %+v", decoded)
	}

	var empty GetOrderRequest
	if err := codec.Unmarshal(nil, &empty); err != nil {
		t.Fatalf("empty body must decode to zero value: %v", err)
	}
	if err := codec.Unmarshal([]byte("{"), &empty); err == nil {
		t.Fatal("expected error on malformed json")
	}
}
