// Package booking validates whether a session's booking request carries
// enough information to hand off to the external appointment API.
package booking

import (
	"github.com/mediflow/triage-engine/internal/model"
)

// Resolution says whether a booking request is complete and, if not,
// which fields the patient still has to supply.
type Resolution struct {
	Ready         bool
	MissingFields []string
}

// Resolver checks booking requests for completeness. hospitalId,
// departmentId and preferredTime are required; doctorId is optional and
// its absence means "any doctor", so it is never reported as missing.
type Resolver struct{}

// Resolve never mutates the request and never touches its status.
func (Resolver) Resolve(req model.BookingRequest) Resolution {
	var missing []string
	if !present(req.HospitalID) {
		missing = append(missing, model.FieldHospitalID)
	}
	if !present(req.DepartmentID) {
		missing = append(missing, model.FieldDepartmentID)
	}
	if !present(req.PreferredTime) {
		missing = append(missing, model.FieldPreferredTime)
	}
	return Resolution{
		Ready:         len(missing) == 0,
		MissingFields: missing,
	}
}

func present(p *string) bool {
	return p != nil && *p != ""
}
