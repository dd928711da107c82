package models

import (
	"time"
)

// TimestampLayout is the only accepted format for a reading timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Wire keys of the non-channel fields.
const (
	FieldEquipmentID = "equipo"
	FieldTimestamp   = "timestamp"
)

// Channels holds the twelve analyser measurements of a reading.
type Channels struct {
	SO2ppb          float64 `json:"SO2_ppb" bson:"SO2_ppb"`
	H2Sppb          float64 `json:"H2S_ppb" bson:"H2S_ppb"`
	ReactionTemp    float64 `json:"Reaction_Temp" bson:"Reaction_Temp"`
	IZSTemp         float64 `json:"IZS_Temp" bson:"IZS_Temp"`
	PMTTemp         float64 `json:"PMT_Temp" bson:"PMT_Temp"`
	SampleFlow      float64 `json:"SampleFlow" bson:"SampleFlow"`
	Pressure        float64 `json:"Pressure" bson:"Pressure"`
	UVLampIntensity float64 `json:"UVLampIntensity" bson:"UVLampIntensity"`
	BoxTemp         float64 `json:"Box_Temp" bson:"Box_Temp"`
	HVPSV           float64 `json:"HVPS_V" bson:"HVPS_V"`
	ConvTemp        float64 `json:"Conv_Temp" bson:"Conv_Temp"`
	OzoneFlow       float64 `json:"Ozone_flow" bson:"Ozone_flow"`
}

// Reading is one CR310 sample from one device at one instant.
//
// A Reading coming out of the validator only carries EquipmentID, Channels
// and Timestamp as received. The normalizer fills in the rest.
type Reading struct {
	ID          string `json:"id" bson:"reading_id"`
	EquipmentID string `json:"equipo" bson:"equipo"`
	Channels    `bson:",inline"`
	Timestamp   string    `json:"timestamp" bson:"timestamp"`
	TimestampAt time.Time `json:"timestamp_dt" bson:"timestamp_dt"`
	IngestedAt  time.Time `json:"created_at" bson:"created_at"`
	Source      string    `json:"source" bson:"source"`

	// Inconsistent is an advisory flag; Warning explains it.
	Inconsistent bool   `json:"inconsistent" bson:"inconsistent"`
	Warning      string `json:"warning,omitempty" bson:"warning,omitempty"`
}

// IngestResult confirms a stored reading.
type IngestResult struct {
	Reading  Reading  `json:"reading"`
	Warnings []string `json:"warnings,omitempty"`
}

// Query defaults.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// QueryFilter selects stored readings. Start is inclusive, End exclusive.
type QueryFilter struct {
	EquipmentID string
	Start       *time.Time
	End         *time.Time
	Limit       int
	Offset      int
}

// Page is one slice of a query result plus the total number of matches.
type Page struct {
	Readings []Reading `json:"data"`
	Total    int64     `json:"total"`
}
