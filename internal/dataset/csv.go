package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var requiredCSVColumns = []string{"name", "year", "selling_price", "km_driven", "fuel", "seller_type", "transmission", "owner"}

// ReadCSV parses a listings export with a header row. The header must carry
// every listing column except index; rows without an index column are
// numbered from 0 in file order.
func ReadCSV(r io.Reader) ([]Listing, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	positions := make(map[string]int, len(header))
	for i, column := range header {
		positions[strings.ToLower(strings.TrimSpace(column))] = i
	}
	for _, column := range requiredCSVColumns {
		if _, ok := positions[column]; !ok {
			return nil, fmt.Errorf("csv header is missing column %q", column)
		}
	}
	indexPos, hasIndex := positions["index"]

	var listings []Listing
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		field := func(name string) string { return strings.TrimSpace(record[positions[name]]) }
		listing := Listing{
			Index:        int64(len(listings)),
			Name:         field("name"),
			Fuel:         field("fuel"),
			SellerType:   field("seller_type"),
			Transmission: field("transmission"),
			Owner:        field("owner"),
		}
		if hasIndex {
			if listing.Index, err = parseInt(record[indexPos]); err != nil {
				return nil, fmt.Errorf("csv line %d: index: %w", line, err)
			}
		}
		if listing.Year, err = parseInt(field("year")); err != nil {
			return nil, fmt.Errorf("csv line %d: year: %w", line, err)
		}
		if listing.SellingPrice, err = parseInt(field("selling_price")); err != nil {
			return nil, fmt.Errorf("csv line %d: selling_price: %w", line, err)
		}
		if listing.KmDriven, err = parseInt(field("km_driven")); err != nil {
			return nil, fmt.Errorf("csv line %d: km_driven: %w", line, err)
		}
		if err := listing.Validate(); err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

func WriteCSV(w io.Writer, listings []Listing) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, l := range listings {
		record := []string{
			strconv.FormatInt(l.Index, 10),
			l.Name,
			strconv.FormatInt(l.Year, 10),
			strconv.FormatInt(l.SellingPrice, 10),
			strconv.FormatInt(l.KmDriven, 10),
			l.Fuel,
			l.SellerType,
			l.Transmission,
			l.Owner,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", l.Index, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func parseInt(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v, nil
	}
	// Some exports write integral columns as floats ("135000.0").
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
