package model

import (
	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model/messages"
)

// Aliases for the types shared by the services.

type (
	Lift          = entities.Lift
	LogRecord     = entities.LogRecord
	Coordinate    = entities.Coordinate
	SensorReading = messages.SensorReading
	StatusUpdate  = messages.StatusUpdate
	Command       = messages.Command
	LiftStatus    = messages.LiftStatus
)
