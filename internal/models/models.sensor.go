// FilePath: internal/models/models.sensor.go
package models

import "fmt"

// DataType identifies what a device measured. Values match the data_types table.
type DataType int

const (
	Picture     DataType = 1
	InCount     DataType = 2
	OutCount    DataType = 3
	Temperature DataType = 4
	Humidity    DataType = 5
	CO2         DataType = 6
	Weight      DataType = 7
)

// Category selects the aggregation operator used at every level transition
type Category string

const (
	// Additive types are counters: a coarser bucket is the sum of finer sums.
	Additive Category = "additive"
	// Intensive types are gauges: a coarser bucket is the count-weighted mean of finer means.
	Intensive Category = "intensive"
)

var dataTypeNames = map[DataType]string{
	Picture:     "picture",
	InCount:     "in",
	OutCount:    "out",
	Temperature: "temperature",
	Humidity:    "humidity",
	CO2:         "co2",
	Weight:      "weight",
}

// additiveTypes is the static lookup behind Category. Everything else is intensive.
var additiveTypes = map[DataType]bool{
	InCount:  true,
	OutCount: true,
}

// Category returns the aggregation category of the data type
func (t DataType) Category() Category {
	if additiveTypes[t] {
		return Additive
	}
	return Intensive
}

// IsAdditive is shorthand for t.Category() == Additive
func (t DataType) IsAdditive() bool {
	return additiveTypes[t]
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// AdditiveTypes lists the additive data types in ascending order
func AdditiveTypes() []DataType {
	return []DataType{InCount, OutCount}
}
