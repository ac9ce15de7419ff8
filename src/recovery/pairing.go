package recovery

import (
	"context"
	"fmt"
	"io"

	"github.com/haorendashu/pagewal/src/record"
	"github.com/haorendashu/pagewal/src/types"
	"github.com/haorendashu/pagewal/src/wal"
)

// PairingViolation describes a record that breaks start/body/end pairing.
type PairingViolation struct {
	LSN     types.LSN
	Unit    int64
	Message string
}

func (v PairingViolation) String() string {
	return fmt.Sprintf("%s unit %d: %s", v.LSN, v.Unit, v.Message)
}

// PairingReport is the result of ValidatePairing.
type PairingReport struct {
	Records    int64
	Units      int64
	Violations []PairingViolation

	// Incomplete lists units still open at the end of the log, in start order.
	// They are in-flight operations, not violations.
	Incomplete []int64
}

// Valid reports whether no violation was found.
func (r *PairingReport) Valid() bool {
	return len(r.Violations) == 0
}

// ValidatePairing checks that every body record follows exactly one open start record
// of its unit and that every end record closes an open unit.
func ValidatePairing(ctx context.Context, w wal.WAL) (*PairingReport, error) {
	begin, err := w.Begin()
	if err != nil {
		return nil, err
	}
	reader, err := w.Read(begin, 0)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	report := &PairingReport{}
	open := make(map[int64]bool)
	var order []int64

	violate := func(lsn types.LSN, unit int64, format string, args ...any) {
		report.Violations = append(report.Violations, PairingViolation{
			LSN:     lsn,
			Unit:    unit,
			Message: fmt.Sprintf(format, args...),
		})
	}

	for {
		entry, err := reader.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return report, err
		}
		report.Records++

		u, ok := entry.Record.(record.UnitRecord)
		if !ok {
			continue
		}
		unit := u.UnitID()

		switch {
		case record.IsUnitStart(u):
			if open[unit] {
				violate(entry.LSN, unit, "second start record while the unit is open")
				continue
			}
			open[unit] = true
			order = append(order, unit)
			report.Units++

		case u.Kind() == record.KindAtomicUnitEnd:
			if !open[unit] {
				violate(entry.LSN, unit, "end record without an open start record")
				continue
			}
			delete(open, unit)

		default:
			if !open[unit] {
				violate(entry.LSN, unit, "%s record outside of its atomic unit", u.Kind())
			}
		}
	}

	for _, unit := range order {
		if open[unit] {
			report.Incomplete = append(report.Incomplete, unit)
			delete(open, unit)
		}
	}
	return report, nil
}
