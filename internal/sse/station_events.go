package sse

import (
	"context"
	"sync"

	"ms-rental/internal/models"
)

// AllStations subscribes to every event regardless of station.
const AllStations int64 = 0

const clientBuffer = 16

// StationBroker fans committed order events out to SSE clients watching a station.
// An event reaches the subscribers of both its pickup and its return station.
type StationBroker struct {
	mu      sync.RWMutex
	clients map[int64][]chan models.OrderEvent
}

func NewStationBroker() *StationBroker {
	return &StationBroker{clients: make(map[int64][]chan models.OrderEvent)}
}

// Subscribe registers a client until ctx is done. The channel is closed on removal.
func (b *StationBroker) Subscribe(ctx context.Context, stationID int64) <-chan models.OrderEvent {
	ch := make(chan models.OrderEvent, clientBuffer)

	b.mu.Lock()
	b.clients[stationID] = append(b.clients[stationID], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(stationID, ch)
	}()
	return ch
}

// Notify implements order.Notifier. Slow clients miss events rather than block the caller.
func (b *StationBroker) Notify(_ context.Context, event models.OrderEvent) error {
	b.Publish(event)
	return nil
}

func (b *StationBroker) Publish(event models.OrderEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	targets := []int64{AllStations, event.PickupStationID}
	if event.ReturnStationID != event.PickupStationID {
		targets = append(targets, event.ReturnStationID)
	}
	for _, stationID := range targets {
		for _, ch := range b.clients[stationID] {
			select {
			case ch <- event:
			default:
			}
		}
	}
}

func (b *StationBroker) remove(stationID int64, ch chan models.OrderEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients := b.clients[stationID]
	for i, c := range clients {
		if c == ch {
			b.clients[stationID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(b.clients[stationID]) == 0 {
		delete(b.clients, stationID)
	}
}

// ClientCount returns the number of clients currently subscribed to a station
func (b *StationBroker) ClientCount(stationID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[stationID])
}
