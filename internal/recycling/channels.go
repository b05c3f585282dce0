package recycling

import "github.com/jgulick48/cloud-bindings/internal/thing"

const (
	ThingTypeProvider thing.TypeUID = "recycling:provider"
	ThingTypeAddress  thing.TypeUID = "recycling:address"
)

const (
	ChannelNextPickup    = "nextPickup"
	ChannelNextFraction  = "nextFraction"
	ChannelFoodWaste     = "foodWaste"
	ChannelResidualWaste = "residualWaste"
	ChannelPaper         = "paper"
	ChannelPlastic       = "plastic"
	ChannelGlass         = "glass"
	ChannelMetal         = "metal"
)

// DefaultRefresh is twelve hours; schedules change rarely.
const DefaultRefresh = 12 * 60 * 60
