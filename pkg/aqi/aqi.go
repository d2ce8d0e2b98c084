// Package aqi converts particulate concentrations to EPA Air Quality
// Index values and their reporting categories.
package aqi

import "math"

// breakpoint is one row of an EPA concentration-to-index table
type breakpoint struct {
	cLow, cHigh float64
	iLow, iHigh float64
}

// 24-hour PM2.5 breakpoints (µg/m³)
var pm25Breakpoints = []breakpoint{
	{0.0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 350.4, 301, 400},
	{350.5, 500.4, 401, 500},
}

// 24-hour PM10 breakpoints (µg/m³)
var pm10Breakpoints = []breakpoint{
	{0, 54, 0, 50},
	{55, 154, 51, 100},
	{155, 254, 101, 150},
	{255, 354, 151, 200},
	{355, 424, 201, 300},
	{425, 504, 301, 400},
	{505, 604, 401, 500},
}

// calculate maps a concentration through a breakpoint table using the
// EPA formula I = (iHigh-iLow)/(cHigh-cLow) * (c-cLow) + iLow.
// Concentrations beyond the table report the 500 ceiling.
func calculate(c float64, table []breakpoint) int32 {
	if c < 0 {
		return 0
	}
	for _, bp := range table {
		if c <= bp.cHigh {
			index := (bp.iHigh-bp.iLow)/(bp.cHigh-bp.cLow)*(c-bp.cLow) + bp.iLow
			return int32(math.Round(index))
		}
	}
	return 500
}

// CalculatePM25 calculates the Air Quality Index from a 24-hour PM2.5
// concentration (µg/m³)
func CalculatePM25(pm25 float32) int32 {
	return calculate(float64(pm25), pm25Breakpoints)
}

// CalculatePM10 calculates the Air Quality Index from a 24-hour PM10
// concentration (µg/m³)
func CalculatePM10(pm10 float32) int32 {
	return calculate(float64(pm10), pm10Breakpoints)
}

// GetCategory returns the AQI category name for a given AQI value
func GetCategory(aqi int32) string {
	switch {
	case aqi <= 50:
		return "Good"
	case aqi <= 100:
		return "Moderate"
	case aqi <= 150:
		return "Unhealthy for Sensitive Groups"
	case aqi <= 200:
		return "Unhealthy"
	case aqi <= 300:
		return "Very Unhealthy"
	default:
		return "Hazardous"
	}
}

// GetCategoryColor returns the standard color code for an AQI value
func GetCategoryColor(aqi int32) string {
	switch {
	case aqi <= 50:
		return "#00e400" // Green
	case aqi <= 100:
		return "#ffff00" // Yellow
	case aqi <= 150:
		return "#ff7e00" // Orange
	case aqi <= 200:
		return "#ff0000" // Red
	case aqi <= 300:
		return "#99004c" // Purple
	default:
		return "#7e0023" // Maroon
	}
}
