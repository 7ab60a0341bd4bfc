package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

type ParquetEncodeResult struct {
	Data        []byte
	RecordCount int64
	MinYear     int64
	MaxYear     int64
}

func EncodeParquet(listings []Listing) (ParquetEncodeResult, error) {
	if len(listings) == 0 {
		return ParquetEncodeResult{}, fmt.Errorf("listings are required")
	}

	result := ParquetEncodeResult{RecordCount: int64(len(listings))}
	for i, l := range listings {
		if i == 0 || l.Year < result.MinYear {
			result.MinYear = l.Year
		}
		if i == 0 || l.Year > result.MaxYear {
			result.MaxYear = l.Year
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Listing](buf)
	if _, err := writer.Write(listings); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}
	result.Data = buf.Bytes()
	return result, nil
}

func DecodeParquet(data []byte) ([]Listing, error) {
	reader := parquet.NewGenericReader[Listing](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	listings := make([]Listing, 0, reader.NumRows())
	batch := make([]Listing, 256)
	for {
		n, err := reader.Read(batch)
		listings = append(listings, batch[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	for _, l := range listings {
		if err := l.Validate(); err != nil {
			return nil, err
		}
	}
	return listings, nil
}
