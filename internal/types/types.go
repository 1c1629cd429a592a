package types

import "time"

// RunStatus is the terminal status of a search run as recorded in logs and history.
type RunStatus string

const (
	RunQuenched  RunStatus = "quenched"
	RunStepLimit RunStatus = "step_limit"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// RunParams are the inputs that, together with the two files, reproduce a run.
type RunParams struct {
	KeyLength       int    `json:"key_length" yaml:"key_length"`
	MaxOrder        int    `json:"max_order" yaml:"max_order"`
	HalfLife        int    `json:"half_life" yaml:"half_life"`
	CaseInsensitive bool   `json:"case_insensitive" yaml:"case_insensitive"`
	Seed            uint64 `json:"seed" yaml:"seed"`
}

// RunRecord is one finished run, persisted by the history store.
type RunRecord struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	CribPath         string    `json:"crib_path"`
	CiphertextPath   string    `json:"ciphertext_path"`
	CiphertextDigest string    `json:"ciphertext_digest"` // hex sha256 of the ciphertext bytes
	Params           RunParams `json:"params"`
	Key              []byte    `json:"key"`
	Score            float64   `json:"score"`
	Steps            int       `json:"steps"`
	Status           RunStatus `json:"status"`
	ElapsedMs        int64     `json:"elapsed_ms"`
}

// HistorySummary is the listing returned by the history store.
type HistorySummary struct {
	Total int         `json:"total"`
	Runs  []RunRecord `json:"runs"` // newest first
}
