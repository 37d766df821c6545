package metadata

var (
	idField        = Field{Name: "id", Type: "string", Required: true}
	agencyRefField = Field{Name: AgencyField, Type: "string", Required: true}
	createdAtField = Field{Name: "created_at", Type: "timestamp", Auto: "create", Nullable: true}
	updatedAtField = Field{Name: "updated_at", Type: "timestamp", Auto: "update", Nullable: true}
	generatedPK    = PrimaryKey{Field: "id", Generated: true}
)

// Catalog returns the resources served by the dashboard API. Resource names
// match the keys of the permission table.
func Catalog() []*Resource {
	return []*Resource{
		agenciesResource(),
		usersResource(),
		voyagesResource(),
		reservationsResource(),
		transactionsResource(),
		complaintsResource(),
		settingsResource(),
	}
}

func agenciesResource() *Resource {
	return &Resource{
		Name:       "agencies",
		Label:      "Agencies",
		Table:      "agencies",
		PrimaryKey: generatedPK,
		Fields: []Field{
			idField,
			{Name: "name", Type: "string", Required: true},
			{Name: "code", Type: "string", Required: true, Unique: true},
			{Name: "city", Type: "string", Required: true},
			{Name: "phone", Type: "string", Nullable: true},
			{Name: "email", Type: "string", Nullable: true},
			{Name: "status", Type: "string", Required: true, Default: "pending", Enum: []string{"pending", "active", "suspended"}},
			{Name: "validated_at", Type: "timestamp", Nullable: true},
			createdAtField,
			updatedAtField,
		},
		Rules: []*Rule{
			{Type: "field", Definition: RuleDefinition{Field: "code", Operator: "pattern", Value: `^[A-Z0-9]{3,10}$`, Message: "Code must be 3-10 uppercase letters or digits"}},
			{Type: "field", Definition: RuleDefinition{Field: "email", Operator: "pattern", Value: `^[^@\s]+@[^@\s]+\.[^@\s]+$`, Message: "Email is not valid"}},
		},
		StateMachine: &StateMachine{
			Field:   "status",
			Initial: "pending",
			Transitions: []Transition{
				{From: TransitionFrom{"pending"}, To: "active", Permission: "validate",
					Actions: []TransitionAction{{Type: "set_field", Field: "validated_at", Value: "now"}}},
				{From: TransitionFrom{"active"}, To: "suspended", Permission: "update"},
				{From: TransitionFrom{"suspended"}, To: "active", Permission: "validate"},
			},
		},
	}
}

func usersResource() *Resource {
	return &Resource{
		Name:         "users",
		Label:        "Users",
		Table:        "users",
		PrimaryKey:   generatedPK,
		AgencyScoped: true,
		Fields: []Field{
			idField,
			{Name: "email", Type: "string", Required: true, Unique: true},
			{Name: "password", Type: "password", Required: true, Column: "password_hash", WriteOnly: true},
			{Name: "full_name", Type: "string", Required: true},
			{Name: "role", Type: "role", Required: true},
			{Name: AgencyField, Type: "string", Nullable: true},
			{Name: "active", Type: "boolean", Default: true},
			createdAtField,
			updatedAtField,
		},
		Rules: []*Rule{
			{Type: "field", Definition: RuleDefinition{Field: "email", Operator: "pattern", Value: `^[^@\s]+@[^@\s]+\.[^@\s]+$`, Message: "Email is not valid"}},
			{Type: "field", Definition: RuleDefinition{Field: "password", Operator: "min_length", Value: float64(8), Message: "Password must be at least 8 characters"}},
			{Type: "field", Definition: RuleDefinition{Field: "full_name", Operator: "min_length", Value: float64(2), Message: "Full name is too short"}},
		},
	}
}

func voyagesResource() *Resource {
	return &Resource{
		Name:         "voyages",
		Label:        "Voyages",
		Table:        "voyages",
		PrimaryKey:   generatedPK,
		AgencyScoped: true,
		Fields: []Field{
			idField,
			agencyRefField,
			{Name: "origin", Type: "string", Required: true},
			{Name: "destination", Type: "string", Required: true},
			{Name: "departure_at", Type: "timestamp", Required: true},
			{Name: "arrival_at", Type: "timestamp", Required: true},
			{Name: "price", Type: "decimal", Required: true},
			{Name: "seats", Type: "int", Required: true},
			{Name: "status", Type: "string", Required: true, Default: "scheduled", Enum: []string{"scheduled", "boarding", "departed", "arrived", "cancelled"}},
			createdAtField,
			updatedAtField,
		},
		Rules: []*Rule{
			{Type: "field", Definition: RuleDefinition{Field: "price", Operator: "min", Value: float64(0), Message: "Price must be non-negative"}},
			{Type: "field", Definition: RuleDefinition{Field: "seats", Operator: "min", Value: float64(1), Message: "A voyage needs at least one seat"}},
			{Type: "field", Definition: RuleDefinition{Field: "seats", Operator: "max", Value: float64(500), Message: "A voyage cannot exceed 500 seats"}},
			{Type: "expression", Definition: RuleDefinition{
				Expression: "record.origin != nil && record.destination != nil && record.origin == record.destination",
				Message:    "Origin and destination must differ",
			}},
			{Type: "expression", Definition: RuleDefinition{
				Expression: "record.departure_at != nil && record.arrival_at != nil && record.arrival_at <= record.departure_at",
				Message:    "Arrival must be after departure",
			}},
		},
		StateMachine: &StateMachine{
			Field:   "status",
			Initial: "scheduled",
			Transitions: []Transition{
				{From: TransitionFrom{"scheduled"}, To: "boarding", Permission: "update"},
				{From: TransitionFrom{"boarding"}, To: "departed", Permission: "update"},
				{From: TransitionFrom{"departed"}, To: "arrived", Permission: "update"},
				{From: TransitionFrom{"scheduled"}, To: "cancelled", Permission: "update"},
			},
		},
	}
}

func reservationsResource() *Resource {
	return &Resource{
		Name:         "reservations",
		Label:        "Reservations",
		Table:        "reservations",
		PrimaryKey:   generatedPK,
		AgencyScoped: true,
		Fields: []Field{
			idField,
			agencyRefField,
			{Name: "voyage_id", Type: "string", Required: true},
			{Name: "passenger_name", Type: "string", Required: true},
			{Name: "passenger_phone", Type: "string", Nullable: true},
			{Name: "seats", Type: "int", Required: true},
			{Name: "amount", Type: "decimal", Required: true},
			{Name: "status", Type: "string", Required: true, Default: "pending", Enum: []string{"pending", "confirmed", "cancelled"}},
			{Name: "cancelled_at", Type: "timestamp", Nullable: true},
			createdAtField,
			updatedAtField,
		},
		Rules: []*Rule{
			{Type: "field", Definition: RuleDefinition{Field: "seats", Operator: "min", Value: float64(1), Message: "At least one seat must be booked"}},
			{Type: "field", Definition: RuleDefinition{Field: "amount", Operator: "min", Value: float64(0), Message: "Amount must be non-negative"}},
			{Type: "field", Definition: RuleDefinition{Field: "passenger_phone", Operator: "pattern", Value: `^\+?[0-9 ]{6,20}$`, Message: "Phone number is not valid"}},
		},
		StateMachine: &StateMachine{
			Field:   "status",
			Initial: "pending",
			Transitions: []Transition{
				{From: TransitionFrom{"pending"}, To: "confirmed", Permission: "update"},
				{From: TransitionFrom{"pending", "confirmed"}, To: "cancelled", Permission: "cancel",
					Actions: []TransitionAction{{Type: "set_field", Field: "cancelled_at", Value: "now"}}},
			},
		},
	}
}

func transactionsResource() *Resource {
	return &Resource{
		Name:         "transactions",
		Label:        "Finance",
		Table:        "transactions",
		PrimaryKey:   generatedPK,
		AgencyScoped: true,
		Fields: []Field{
			idField,
			agencyRefField,
			{Name: "reservation_id", Type: "string", Required: true},
			{Name: "amount", Type: "decimal", Required: true},
			{Name: "method", Type: "string", Required: true, Enum: []string{"cash", "card", "mobile_money", "transfer"}},
			{Name: "reference", Type: "string", Required: true, Unique: true},
			{Name: "status", Type: "string", Required: true, Default: "pending", Enum: []string{"pending", "validated", "refunded"}},
			{Name: "validated_by", Type: "string", Nullable: true},
			{Name: "validated_at", Type: "timestamp", Nullable: true},
			createdAtField,
			updatedAtField,
		},
		StateMachine: &StateMachine{
			Field:   "status",
			Initial: "pending",
			Transitions: []Transition{
				{From: TransitionFrom{"pending"}, To: "validated", Permission: "validate", Guard: "record.amount > 0",
					Actions: []TransitionAction{
						{Type: "set_field", Field: "validated_at", Value: "now"},
						{Type: "set_field", Field: "validated_by", Value: "$user"},
					}},
				{From: TransitionFrom{"validated"}, To: "refunded", Permission: "refund"},
			},
		},
	}
}

func complaintsResource() *Resource {
	return &Resource{
		Name:         "complaints",
		Label:        "Support",
		Table:        "complaints",
		PrimaryKey:   generatedPK,
		AgencyScoped: true,
		Fields: []Field{
			idField,
			agencyRefField,
			{Name: "reservation_id", Type: "string", Nullable: true},
			{Name: "subject", Type: "string", Required: true},
			{Name: "message", Type: "text", Required: true},
			{Name: "status", Type: "string", Required: true, Default: "open", Enum: []string{"open", "assigned", "closed"}},
			{Name: "assignee_id", Type: "string", Nullable: true},
			createdAtField,
			updatedAtField,
		},
		Rules: []*Rule{
			{Type: "field", Definition: RuleDefinition{Field: "subject", Operator: "max_length", Value: float64(120), Message: "Subject is too long"}},
			{Type: "field", Definition: RuleDefinition{Field: "message", Operator: "min_length", Value: float64(10), Message: "Please describe the problem"}},
		},
		StateMachine: &StateMachine{
			Field:   "status",
			Initial: "open",
			Transitions: []Transition{
				{From: TransitionFrom{"open"}, To: "assigned", Permission: "assign",
					Actions: []TransitionAction{{Type: "set_field", Field: "assignee_id", Value: "$user"}}},
				{From: TransitionFrom{"open", "assigned"}, To: "closed", Permission: "close"},
			},
		},
	}
}

func settingsResource() *Resource {
	return &Resource{
		Name:       "settings",
		Label:      "Settings",
		Table:      "settings",
		PrimaryKey: PrimaryKey{Field: "name"},
		Fields: []Field{
			{Name: "name", Type: "string", Required: true},
			{Name: "value", Type: "string", Required: true},
			{Name: "description", Type: "text", Nullable: true},
			createdAtField,
			updatedAtField,
		},
		Rules: []*Rule{
			{Type: "field", Definition: RuleDefinition{Field: "name", Operator: "pattern", Value: `^[a-z][a-z0-9_.]{1,63}$`, Message: "Setting names are lowercase dotted identifiers"}},
		},
	}
}
