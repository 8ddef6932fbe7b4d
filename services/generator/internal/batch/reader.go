package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/sakashimaa/sales-pipeline/pkg/domain"
)

var ErrHeaderMismatch = errors.New("unexpected header")

// ReadFile parses an exported file back into events.
func ReadFile(path string) ([]domain.SalesEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Read(f)
}

func Read(r io.Reader) ([]domain.SalesEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(domain.Header)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}
	if !slices.Equal(header, domain.Header) {
		return nil, fmt.Errorf("%w: %v", ErrHeaderMismatch, header)
	}

	var events []domain.SalesEvent
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("error reading row %d: %w", len(events)+1, err)
		}

		event, err := domain.ParseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(events)+1, err)
		}

		events = append(events, event)
	}
}
