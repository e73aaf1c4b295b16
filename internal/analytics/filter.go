package analytics

import (
	"time"

	"github.com/roadwatch/backend/pkg/utils"
)

// Filter holds the optional predicates shared by the analytics queries.
// Zero values impose no constraint.
type Filter struct {
	// Location matches the collision location text, case-insensitively, anywhere in the string
	Location string
	// Severity matches the severity description the same way
	Severity string
	// StartDate and EndDate are inclusive bounds on occurred_at
	StartDate *time.Time
	EndDate   *time.Time
	// AddressType must equal the address type name exactly
	AddressType string
	SeverityID  *int64
}

// apply narrows q with every filter that is set
func (f Filter) apply(q *selectQuery) {
	if f.Location != "" {
		q.where("tc.location ILIKE " + q.bind(utils.ContainsPattern(f.Location)))
	}
	if f.Severity != "" {
		q.join(joinSeverity)
		q.where("s.description ILIKE " + q.bind(utils.ContainsPattern(f.Severity)))
	}
	if f.StartDate != nil {
		q.where("tc.occurred_at >= " + q.bind(*f.StartDate))
	}
	if f.EndDate != nil {
		q.where("tc.occurred_at <= " + q.bind(*f.EndDate))
	}
	if f.AddressType != "" {
		q.join(joinAddressType)
		q.where("adt.name = " + q.bind(f.AddressType))
	}
	if f.SeverityID != nil {
		q.where("tc.severity_id = " + q.bind(*f.SeverityID))
	}
}
