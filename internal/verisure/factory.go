package verisure

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
	case ThingTypeBridge, ThingTypeAlarm, ThingTypeSmartLock, ThingTypeSmartPlug,
		ThingTypeClimateSensor, ThingTypeDoorWindow, ThingTypeUserPresence:
		return true
	}
	return false
}

func (f *Factory) Create(t thing.Thing, bridge thing.Handler, callback thing.Callback) (thing.Handler, error) {
	if t.Type == ThingTypeBridge {
		return NewBridge(t, callback, f.scheduler, f.httpClient), nil
	}
	if !f.Supports(t.Type) {
		return nil, fmt.Errorf("unsupported thing type %s", t.Type)
	}
	var b *Bridge
	if bridge != nil {
		var ok bool
		if b, ok = bridge.(*Bridge); !ok {
			return nil, fmt.Errorf("thing %s needs a %s bridge", t.UID, ThingTypeBridge)
		}
	}
	return NewHandler(t, callback, b), nil
}
