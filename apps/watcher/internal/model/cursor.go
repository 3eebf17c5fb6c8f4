package model

import (
	"fmt"
	"time"
)

type Cursor struct {
	ChainID            string    `db:"chain_id"`
	LastProcessedBlock uint64    `db:"last_processed_block"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// BlockRange is an inclusive span of block heights that is scanned and
// checkpointed as a single unit of progress.
type BlockRange struct {
	Start uint64
	End   uint64
}

func (r BlockRange) Len() uint64 {
	return r.End - r.Start + 1
}

func (r BlockRange) String() string {
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}
