package model

import (
	"time"

	"github.com/google/uuid"
)

// EventLog is the append-only audit record of every published domain
// event. It is written synchronously before subscriber dispatch, so the
// log survives even if every subscriber fails.
type EventLog struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(50);not null;index" json:"name"`   // e.g. invoice.approved
	Source    string    `gorm:"type:varchar(30);not null" json:"source"`       // publishing module
	Payload   string    `gorm:"type:jsonb;not null" json:"payload"`            // serialized event payload
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
