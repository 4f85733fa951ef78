package design

import "time"

// Design lifecycle states.
const (
	StatusPending = "pending"
	StatusReady   = "ready"
	StatusFailed  = "failed"
)

// Params describe the jersey a shopper wants generated.
type Params struct {
	Sport          string `json:"sport" validate:"required,oneof=soccer basketball baseball football hockey volleyball rugby cricket esports"`
	PrimaryColor   string `json:"primaryColor" validate:"required,hexcolor"`
	SecondaryColor string `json:"secondaryColor,omitempty" validate:"omitempty,hexcolor"`
	Pattern        string `json:"pattern,omitempty" validate:"omitempty,oneof=solid stripes hoops gradient camo geometric"`
	Style          string `json:"style,omitempty" validate:"omitempty,max=40"`
	TeamName       string `json:"teamName,omitempty" validate:"omitempty,max=40"`
	Prompt         string `json:"prompt,omitempty" validate:"omitempty,max=500"`
}

// Images are the rendered front and back views of a design.
type Images struct {
	FrontURL string `json:"frontUrl"`
	BackURL  string `json:"backUrl"`
}

// Design is a generation request and, once ready, its images.
type Design struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Params    Params    `json:"params"`
	Status    string    `json:"status"`
	Images    *Images   `json:"images,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
