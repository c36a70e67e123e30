package repositories

import (
	"gorm.io/gorm"
)

// handles carries the write and read-only connections of a repository.
// Inside a transaction both point at the transaction handle so that reads
// see uncommitted writes and never wait on a second connection.
type handles struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

func newHandles(db, readOnlyDB *gorm.DB) handles {
	if readOnlyDB == nil {
		readOnlyDB = db
	}
	return handles{db: db, readOnlyDB: readOnlyDB}
}

// Page bounds a listing
type Page struct {
	Limit  int
	Offset int
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	limit := p.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return q.Limit(limit).Offset(p.Offset)
}

// Repositories bundles every repository over the same connections
type Repositories struct {
	Users      *UserRepository
	Donations  *DonationRepository
	Requests   *RequestRepository
	Matches    *MatchRepository
	Deliveries *DeliveryRepository
	Volunteers *VolunteerRepository
}

// New creates all repositories
func New(db, readOnlyDB *gorm.DB) *Repositories {
	return &Repositories{
		Users:      NewUserRepository(db, readOnlyDB),
		Donations:  NewDonationRepository(db, readOnlyDB),
		Requests:   NewRequestRepository(db, readOnlyDB),
		Matches:    NewMatchRepository(db, readOnlyDB),
		Deliveries: NewDeliveryRepository(db, readOnlyDB),
		Volunteers: NewVolunteerRepository(db, readOnlyDB),
	}
}

// WithTx returns repositories bound to a transaction
func (r *Repositories) WithTx(tx *gorm.DB) *Repositories {
	return New(tx, tx)
}
