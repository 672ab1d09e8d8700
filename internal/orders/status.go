package orders

type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusConfirmed      Status = "confirmed"
	StatusCompleted      Status = "completed"
	StatusCanceled       Status = "canceled"
)

var validNext = map[Status]map[Status]bool{
	StatusPendingPayment: {StatusPaid: true, StatusCanceled: true},
	StatusPaid:           {StatusConfirmed: true},
	StatusConfirmed:      {StatusCompleted: true},
	StatusCompleted:      {},
	StatusCanceled:       {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// StaffLabel is the status shown on staff dashboards, where a paid order is
// already "confirmed" from the customer's point of view.
func (s Status) StaffLabel() string {
	switch s {
	case "":
		return "pending"
	case StatusPendingPayment:
		return "pending"
	case StatusPaid:
		return "confirmed"
	}
	return string(s)
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RolePreparer Role = "preparateur"
	RoleCashier  Role = "caissier"
	RoleStaff    Role = "staff"
	RoleCustomer Role = "customer"
)

// Actor is the authenticated caller of a staff operation.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

func (a Actor) String() string {
	if a.ID == "" {
		return "system"
	}
	return a.ID
}
