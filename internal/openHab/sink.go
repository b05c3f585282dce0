package openHab

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/thing"
)

// Sink mirrors channel states onto the openHAB items that follow the
// channel naming convention. Channels without such an item are unlinked.
type Sink struct {
	client Client

	mu    sync.RWMutex
	items map[string]bool
}

func NewSink(client Client) *Sink {
	return &Sink{client: client, items: make(map[string]bool)}
}

// LoadItems refreshes the set of item names from the server.
func (s *Sink) LoadItems() error {
	items, err := s.client.GetItems()
	if err != nil {
		return err
	}
	names := make(map[string]bool, len(items))
	for _, item := range items {
		names[item.Name] = true
	}
	s.mu.Lock()
	s.items = names
	s.mu.Unlock()
	log.Info().Int("items", len(names)).Msg("Loaded items from openHAB")
	return nil
}

func (s *Sink) IsLinked(channel thing.ChannelUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[channel.ItemName()]
}

func (s *Sink) StateUpdated(channel thing.ChannelUID, state thing.State) {
	if !s.IsLinked(channel) {
		return
	}
	if err := s.client.UpdateItemState(channel.ItemName(), state.String()); err != nil {
		log.Warn().Err(err).Str("channel", channel.String()).Msg("Failed to update openHAB item")
	}
}

func (s *Sink) StatusUpdated(uid thing.UID, info thing.StatusInfo) {}
