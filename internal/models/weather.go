package models

// Payload is the body served by GET /getweather. It mirrors the subset of the
// OpenWeatherMap current-weather response the widget reads. Temp is in Kelvin.
type Payload struct {
	Weather []Condition `json:"weather"`
	Main    Main        `json:"main"`
	Wind    Wind        `json:"wind"`
	Name    string      `json:"name,omitempty"`
	Cod     int         `json:"cod,omitempty"`
	// Error is set instead of the fields above when the backend reports a
	// domain-level failure with a 2xx status.
	Error string `json:"error,omitempty"`
}

type Condition struct {
	Main        string `json:"main,omitempty"`
	Description string `json:"description"`
}

type Main struct {
	Temp     float64 `json:"temp"`
	Humidity int     `json:"humidity"`
}

type Wind struct {
	Speed float64 `json:"speed"`
}

// Description returns the first condition description, or "" when the payload
// carries no weather entries.
func (p Payload) Description() string {
	if len(p.Weather) == 0 {
		return ""
	}
	return p.Weather[0].Description
}

// ErrorBody is the JSON shape of every error the backend writes.
type ErrorBody struct {
	Error string `json:"error"`
}
