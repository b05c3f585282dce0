package unifi

import (
	"fmt"
	"net/http"

	"github.com/jgulick48/cloud-bindings/internal/scheduler"
	"github.com/jgulick48/cloud-bindings/internal/thing"
)

type Factory struct {
	scheduler  scheduler.Scheduler
	httpClient *http.Client
}

func NewFactory(sched scheduler.Scheduler, httpClient *http.Client) *Factory {
	return &Factory{scheduler: sched, httpClient: httpClient}
}

func (f *Factory) Supports(thingType thing.TypeUID) bool {
	switch thingType {
	case ThingTypeController, ThingTypeWirelessClient, ThingTypeWiredClient:
		return true
	}
	return false
}

func (f *Factory) Create(t thing.Thing, bridge thing.Handler, callback thing.Callback) (thing.Handler, error) {
	switch t.Type {
	case ThingTypeController:
		return NewController(t, callback, f.scheduler, f.httpClient), nil
	case ThingTypeWirelessClient, ThingTypeWiredClient:
		var c *Controller
		if bridge != nil {
			var ok bool
			if c, ok = bridge.(*Controller); !ok {
				return nil, fmt.Errorf("thing %s needs a %s bridge", t.UID, ThingTypeController)
			}
		}
		return NewClientHandler(t, callback, c), nil
	}
	return nil, fmt.Errorf("unsupported thing type %s", t.Type)
}
