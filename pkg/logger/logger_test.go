package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithAddress(ctx, "0xseller")
	ctx = log.WithListingID(ctx, 7)

	log.Error(ctx, "boom", errors.New("boom"))

	if !bytes.Contains(buf.Bytes(), []byte("\"address\"")) {
		t.Fatalf("expected address to be preserved; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("\"listing_id\"")) {
		t.Fatalf("expected listing_id to be preserved; entry=%s", buf.String())
	}
}

func TestLoggerInfoCarriesServiceName(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "engine", Output: buf})
	log.Info(context.Background(), "minted")
	if !bytes.Contains(buf.Bytes(), []byte("\"service\":\"engine\"")) {
		t.Fatalf("expected service field; entry=%s", buf.String())
	}
}
