package model

// Service is something the clinic offers, e.g. a consultation type.
type Service struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	DurationMin int    `json:"duration_min"`
	PriceCents  int64  `json:"price_cents"`
	IsActive    bool   `json:"is_active"`
	Audit
}

// Drug is an item of the clinic's pharmacy stock.
type Drug struct {
	ID           uint64 `json:"id"`
	Name         string `json:"name"`
	Form         string `json:"form"`
	Strength     string `json:"strength"`
	Manufacturer string `json:"manufacturer"`
	Stock        int    `json:"stock"`
	PriceCents   int64  `json:"price_cents"`
	Audit
}
