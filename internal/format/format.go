// Package format turns a raw weather payload into display-ready values.
package format

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/kjstillabower/weather-lookup/internal/models"
)

// Icon is a weather glyph picked from the condition description.
type Icon int

const (
	IconDefault Icon = iota
	IconSunny
	IconCloudy
	IconRainy
	IconSnowy
	IconStormy
)

func (i Icon) String() string {
	switch i {
	case IconSunny:
		return "sunny"
	case IconCloudy:
		return "cloudy"
	case IconRainy:
		return "rainy"
	case IconSnowy:
		return "snowy"
	case IconStormy:
		return "stormy"
	default:
		return "default"
	}
}

// Glyph returns the emoji rendered for the icon.
func (i Icon) Glyph() string {
	switch i {
	case IconSunny:
		return "🌞"
	case IconCloudy:
		return "☁️"
	case IconRainy:
		return "🌧️"
	case IconSnowy:
		return "❄️"
	case IconStormy:
		return "🌩️"
	default:
		return "🌤️"
	}
}

// iconRules is checked in order; the first matching keyword wins.
var iconRules = []struct {
	keyword string
	icon    Icon
}{
	{"clear", IconSunny},
	{"cloud", IconCloudy},
	{"rain", IconRainy},
	{"snow", IconSnowy},
	{"storm", IconStormy},
}

// ErrNoConditions is returned by Compose when the payload has no weather entry.
var ErrNoConditions = errors.New("weather payload has no conditions")

// Capitalize upper-cases the first rune and lower-cases the rest. The result
// has the same number of runes as name.
func Capitalize(name string) string {
	if name == "" {
		return name
	}
	runes := []rune(name)
	runes[0] = unicode.ToUpper(runes[0])
	for i := 1; i < len(runes); i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// ToCelsius converts Kelvin to Celsius rounded to two decimal places.
func ToCelsius(kelvin float64) float64 {
	return math.Round((kelvin-273.15)*100) / 100
}

// SelectIcon picks the icon for a condition description.
func SelectIcon(description string) Icon {
	d := strings.ToLower(description)
	for _, rule := range iconRules {
		if strings.Contains(d, rule.keyword) {
			return rule.icon
		}
	}
	return IconDefault
}

// Result is one rendered weather lookup.
type Result struct {
	City         string
	Icon         Icon
	TemperatureC float64
	Description  string
	Humidity     int
	WindSpeed    float64
}

// Compose builds a Result for city from the backend payload.
func Compose(city string, p models.Payload) (Result, error) {
	if len(p.Weather) == 0 {
		return Result{}, ErrNoConditions
	}
	description := p.Description()
	return Result{
		City:         Capitalize(city),
		Icon:         SelectIcon(description),
		TemperatureC: ToCelsius(p.Main.Temp),
		Description:  description,
		Humidity:     p.Main.Humidity,
		WindSpeed:    p.Wind.Speed,
	}, nil
}

// Lines returns the result as display lines, top to bottom.
func (r Result) Lines() []string {
	return []string{
		"Weather in " + r.City,
		r.Icon.Glyph(),
		fmt.Sprintf("🌡️ Temperature: %.2f°C", r.TemperatureC),
		"🌧️ Weather: " + r.Description,
		fmt.Sprintf("💧 Humidity: %d%%", r.Humidity),
		"🌬️ Wind Speed: " + formatSpeed(r.WindSpeed) + " m/s",
	}
}

func formatSpeed(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
