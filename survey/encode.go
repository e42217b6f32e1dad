package survey

import (
	"encoding/json"
	"time"
)

// Report is the snapshot handed to the completion consumer after the
// final cycle of a survey round.
type Report struct {
	// Utime is the capture time in microseconds since the Unix epoch.
	Utime int64 `json:"utime"`
	// Seq is the cycle sequence of the round's last cycle.
	Seq uint32 `json:"seq"`
	// Rows holds every node's row, indexed by slot id.
	Rows []RowReport `json:"rows"`
}

// RowReport is one matrix row in export form.
type RowReport struct {
	Slot   uint16    `json:"slot"`
	Mask   uint32    `json:"mask"`
	Ranges []float32 `json:"ranges"`
}

func (s *Session) report() Report {
	rows := s.Matrix()
	r := Report{
		Utime: time.Now().UnixMicro(),
		Seq:   s.Seq(),
		Rows:  make([]RowReport, len(rows)),
	}
	for i, row := range rows {
		r.Rows[i] = RowReport{
			Slot:   uint16(i),
			Mask:   uint32(row.Mask),
			Ranges: row.Ranges,
		}
	}
	return r
}

// MarshalJSON order is fixed by the struct; Encode is a convenience for
// consumers logging the report verbatim.
func (r Report) Encode() ([]byte, error) {
	return json.Marshal(r)
}
