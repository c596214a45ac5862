package model

// Service is a catalog entry: what can be booked and for how long.
type Service struct {
	Name        string  `json:"name" bson:"name" validate:"required,min=1,max=100,printable"`
	DurationMin int     `json:"duration_min" bson:"duration_min" validate:"required,min=1,max=1440"`
	Price       float64 `json:"price" bson:"price" validate:"min=0"`
	Description string  `json:"description,omitempty" bson:"description,omitempty" validate:"omitempty,max=500"`
}
