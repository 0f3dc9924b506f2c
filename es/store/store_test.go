package store_test

import (
	"testing"

	"github.com/juju/errors"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/store"
)

func TestValidateBatch(t *testing.T) {
	order := func(id string) es.Event {
		return es.Event{AggregateType: "Order", AggregateID: id, EventType: "OrderPlaced"}
	}

	tests := []struct {
		name    string
		events  []es.Event
		wantErr error
	}{
		{"empty", nil, store.ErrNoEvents},
		{"single event", []es.Event{order("1")}, nil},
		{"same stream", []es.Event{order("1"), order("1"), order("1")}, nil},
		{"different ids", []es.Event{order("1"), order("2")}, store.ErrMixedStreams},
		{
			name: "different types",
			events: []es.Event{
				order("1"),
				{AggregateType: "Invoice", AggregateID: "1"},
			},
			wantErr: store.ErrMixedStreams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.ValidateBatch(tt.events)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
