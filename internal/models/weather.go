package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// NoData is rendered in place of a current-conditions field the provider left out.
const NoData = "No data"

// ErrNotObject is returned by ParseReport when the document is valid JSON but not an object.
var ErrNotObject = errors.New("report is not a JSON object")

// Report is the provider's JSON document. The schema belongs to the provider;
// only currentConditions and days are read.
type Report map[string]any

// ParseReport decodes a provider document. Numbers are kept as json.Number so
// they re-encode exactly as the provider sent them.
func ParseReport(data []byte) (Report, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after report")
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Report(obj), nil
}

// CurrentConditions returns the currentConditions object, or nil when absent.
func (r Report) CurrentConditions() map[string]any {
	cc, _ := r["currentConditions"].(map[string]any)
	return cc
}

// Days returns the days array, or nil when absent.
func (r Report) Days() []any {
	days, _ := r["days"].([]any)
	return days
}

// ForecastDays returns at most n entries of days. Fewer available days yields all of them.
func (r Report) ForecastDays(n int) []any {
	days := r.Days()
	if n < 0 {
		n = 0
	}
	if n > len(days) {
		n = len(days)
	}
	out := make([]any, n)
	copy(out, days[:n])
	return out
}

// CurrentWeather is the flattened view served by GET /weather/current.
type CurrentWeather struct {
	City        string `json:"city"`
	Datetime    any    `json:"datetime"`
	Temperature any    `json:"temperature"`
	Humidity    any    `json:"humidity"`
	WindSpeed   any    `json:"wind_speed"`
	Description any    `json:"description"`
}

// Current extracts the five current-condition fields, substituting NoData for missing ones.
// A field present as null stays null.
func (r Report) Current(city string) CurrentWeather {
	cc := r.CurrentConditions()
	field := func(name string) any {
		if v, ok := cc[name]; ok {
			return v
		}
		return NoData
	}
	return CurrentWeather{
		City:        city,
		Datetime:    field("datetime"),
		Temperature: field("temp"),
		Humidity:    field("humidity"),
		WindSpeed:   field("windspeed"),
		Description: field("conditions"),
	}
}

// Forecast is the payload served by GET /weather/forecast.
type Forecast struct {
	City     string `json:"city"`
	Forecast []any  `json:"forecast"`
}
