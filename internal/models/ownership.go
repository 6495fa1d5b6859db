package models

// GroupOwned is implemented by rows belonging to a tenant.
type GroupOwned interface {
	GetGroupID() string
}

// SiteScoped is implemented by rows belonging to a single Site.
type SiteScoped interface {
	GroupOwned
	GetSiteID() string
}

// All lists every model for migration, parents first.
func All() []any {
	return []any{
		&Group{},
		&GroupBilling{},
		&Site{},
		&User{},
		&VerificationToken{},
		&Invite{},
		&TaxRate{},
		&ServiceCatalogue{},
		&Booking{},
		&JobCard{},
		&JobCardTask{},
	}
}
