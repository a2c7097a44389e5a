package broadcast

import (
	"context"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/eventbus"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/events"
)

// BusRelay republishes notifications on the realtime bus topic so socket
// gateways running in other processes can forward them to their clients.
type BusRelay struct {
	publisher eventbus.EventPublisher
}

func NewBusRelay(publisher eventbus.EventPublisher) *BusRelay {
	return &BusRelay{publisher: publisher}
}

func (r *BusRelay) Relay(ctx context.Context, msg Message) error {
	relay := events.RealtimeRelay{
		BaseEvent: events.NewBaseEvent(events.RealtimeRelayEvent, ""),
		ProjectID: msg.ProjectID,
		Name:      msg.Name,
		Payload:   msg.Payload,
	}
	relay.Timestamp = msg.Timestamp

	return r.publisher.Publish(ctx, msg.ProjectID, relay)
}
