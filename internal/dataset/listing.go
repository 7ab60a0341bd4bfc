// Package dataset moves second hand car listings between CSV files, parquet
// objects and the relational store the chat queries.
package dataset

import (
	"fmt"
	"strings"
)

// Listing is one row of the cars table.
type Listing struct {
	Index        int64  `parquet:"index" json:"index"`
	Name         string `parquet:"name" json:"name"`
	Year         int64  `parquet:"year" json:"year"`
	SellingPrice int64  `parquet:"selling_price" json:"selling_price"`
	KmDriven     int64  `parquet:"km_driven" json:"km_driven"`
	Fuel         string `parquet:"fuel" json:"fuel"`
	SellerType   string `parquet:"seller_type" json:"seller_type"`
	Transmission string `parquet:"transmission" json:"transmission"`
	Owner        string `parquet:"owner" json:"owner"`
}

// Columns lists the cars table columns in storage order.
var Columns = []string{"index", "name", "year", "selling_price", "km_driven", "fuel", "seller_type", "transmission", "owner"}

func (l Listing) Validate() error {
	switch {
	case strings.TrimSpace(l.Name) == "":
		return fmt.Errorf("listing %d: name is required", l.Index)
	case l.Year < 1900 || l.Year > 2100:
		return fmt.Errorf("listing %d: year %d out of range", l.Index, l.Year)
	case l.SellingPrice < 0:
		return fmt.Errorf("listing %d: selling_price must be >= 0", l.Index)
	case l.KmDriven < 0:
		return fmt.Errorf("listing %d: km_driven must be >= 0", l.Index)
	}
	return nil
}

func (l Listing) values() []any {
	return []any{l.Index, l.Name, l.Year, l.SellingPrice, l.KmDriven, l.Fuel, l.SellerType, l.Transmission, l.Owner}
}
