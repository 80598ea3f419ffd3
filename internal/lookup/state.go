package lookup

import "github.com/kjstillabower/weather-lookup/internal/format"

// Phase is the lifecycle stage of one lookup.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSuccess
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// ErrorKind classifies a failed lookup.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindInput is an empty city; no request was made.
	KindInput
	// KindHTTPStatus is a non-2xx response from the backend.
	KindHTTPStatus
	// KindDomain is an error field in a 2xx response body.
	KindDomain
	// KindTransport covers no response at all and failures while processing one.
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindHTTPStatus:
		return "http_status"
	case KindDomain:
		return "domain"
	case KindTransport:
		return "transport"
	default:
		return "none"
	}
}

// State is what the view renders. Result is set only in PhaseSuccess;
// Kind, Message and StatusCode only in PhaseFailed.
type State struct {
	Phase      Phase
	City       string
	Result     format.Result
	Kind       ErrorKind
	Message    string
	StatusCode int
	// Superseded marks a lookup cancelled by a newer one. It was not rendered.
	Superseded bool
}

func Idle() State { return State{Phase: PhaseIdle} }

func Loading(city string) State { return State{Phase: PhaseLoading, City: city} }

func Succeeded(city string, r format.Result) State {
	return State{Phase: PhaseSuccess, City: city, Result: r}
}

func Failed(city string, kind ErrorKind, message string) State {
	return State{Phase: PhaseFailed, City: city, Kind: kind, Message: message}
}

// View renders lookup states into the result area.
type View interface {
	Render(State)
}

// ViewFunc adapts a function to View.
type ViewFunc func(State)

func (f ViewFunc) Render(s State) { f(s) }
