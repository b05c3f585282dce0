package weconnect

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
	return thingType == ThingTypeBridge || thingType == ThingTypeVehicle
}

func (f *Factory) Create(t thing.Thing, bridge thing.Handler, callback thing.Callback) (thing.Handler, error) {
	switch t.Type {
	case ThingTypeBridge:
		return NewBridge(t, callback, f.scheduler, f.httpClient), nil
	case ThingTypeVehicle:
		var b *Bridge
		if bridge != nil {
			var ok bool
			if b, ok = bridge.(*Bridge); !ok {
				return nil, fmt.Errorf("thing %s needs a %s bridge", t.UID, ThingTypeBridge)
			}
		}
		return NewVehicleHandler(t, callback, b), nil
	}
	return nil, fmt.Errorf("unsupported thing type %s", t.Type)
}
