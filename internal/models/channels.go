package models

// ChannelSpec declares one measurement channel and its closed valid range.
type ChannelSpec struct {
	Name        string
	Unit        string
	Min         float64
	Max         float64
	Temperature bool

	ref func(*Channels) *float64
}

// Ref returns a pointer to the channel's value in c.
func (s ChannelSpec) Ref(c *Channels) *float64 { return s.ref(c) }

// Get returns the channel's value in c.
func (s ChannelSpec) Get(c *Channels) float64 { return *s.ref(c) }

// Set stores v as the channel's value in c.
func (s ChannelSpec) Set(c *Channels, v float64) { *s.ref(c) = v }

// InRange reports whether v lies inside [Min, Max].
func (s ChannelSpec) InRange(v float64) bool { return v >= s.Min && v <= s.Max }

// ChannelSpecs lists the channels in wire order.
var ChannelSpecs = []ChannelSpec{
	{Name: "SO2_ppb", Unit: "ppb", Min: 0, Max: 10000, ref: func(c *Channels) *float64 { return &c.SO2ppb }},
	{Name: "H2S_ppb", Unit: "ppb", Min: 0, Max: 1000, ref: func(c *Channels) *float64 { return &c.H2Sppb }},
	{Name: "Reaction_Temp", Unit: "°C", Min: 20, Max: 60, Temperature: true, ref: func(c *Channels) *float64 { return &c.ReactionTemp }},
	{Name: "IZS_Temp", Unit: "°C", Min: 20, Max: 60, Temperature: true, ref: func(c *Channels) *float64 { return &c.IZSTemp }},
	{Name: "PMT_Temp", Unit: "°C", Min: 20, Max: 60, Temperature: true, ref: func(c *Channels) *float64 { return &c.PMTTemp }},
	{Name: "SampleFlow", Unit: "cc/min", Min: 0, Max: 1000, ref: func(c *Channels) *float64 { return &c.SampleFlow }},
	{Name: "Pressure", Unit: "inHg", Min: 0, Max: 100, ref: func(c *Channels) *float64 { return &c.Pressure }},
	{Name: "UVLampIntensity", Unit: "mV", Min: 0, Max: 1000, ref: func(c *Channels) *float64 { return &c.UVLampIntensity }},
	{Name: "Box_Temp", Unit: "°C", Min: 20, Max: 60, Temperature: true, ref: func(c *Channels) *float64 { return &c.BoxTemp }},
	{Name: "HVPS_V", Unit: "V", Min: 0, Max: 1000, ref: func(c *Channels) *float64 { return &c.HVPSV }},
	{Name: "Conv_Temp", Unit: "°C", Min: 20, Max: 60, Temperature: true, ref: func(c *Channels) *float64 { return &c.ConvTemp }},
	{Name: "Ozone_flow", Unit: "cc/min", Min: 0, Max: 1000, ref: func(c *Channels) *float64 { return &c.OzoneFlow }},
}

// RequiredFields returns every field a payload must carry, in wire order.
func RequiredFields() []string {
	fields := make([]string, 0, len(ChannelSpecs)+2)
	fields = append(fields, FieldEquipmentID)
	for _, ch := range ChannelSpecs {
		fields = append(fields, ch.Name)
	}
	return append(fields, FieldTimestamp)
}
