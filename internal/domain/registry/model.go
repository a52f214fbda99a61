package registry

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patients table. The hospital number (HN) identifies the
// patient across visits and never changes; patient records are never deleted.
type Patient struct {
	ID          uuid.UUID `db:"id" json:"id"`
	HN          string    `db:"hn" json:"hn"`
	DisplayName string    `db:"display_name" json:"display_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Doctor maps to the doctors table. SPID is the clinic's service point
// identifier; Active controls whether the doctor can receive new queue
// entries.
type Doctor struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	SPID      string    `db:"spid" json:"spid"`
	Room      string    `db:"room" json:"room"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
