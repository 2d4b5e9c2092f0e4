package models

// UserInfo names an ERP user for joining onto metric rows.
type UserInfo struct {
	User         string `json:"user"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	BusinessUnit string `json:"business_unit"`
	UnitName     string `json:"business_unit_name,omitempty"`
}
