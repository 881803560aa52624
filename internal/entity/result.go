package entity

import "time"

// State is a pipeline stage.
type State int

const (
	StateIdle State = iota
	StateValidatingLink
	StateFetchingMetadata
	StateProcessing
	StateAssembling
	StateDelivering
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	return [...]string{"Idle", "ValidatingLink", "FetchingMetadata", "Processing", "Assembling", "Delivering", "Succeeded", "Failed"}[s]
}

// IsTerminal reports whether no further transition can happen.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Progress is the share of attempted items. Fraction is Completed/Total, or 1 for an empty pack.
type Progress struct {
	Completed int
	Total     int
	Fraction  float64
}

// ProgressFunc receives item progress. Calls never overlap and Fraction never decreases.
type ProgressFunc func(Progress)

// PipelineResult is the terminal outcome of one run.
type PipelineResult struct {
	RunID            string
	Identifier       PackIdentifier // Empty when the link was rejected
	State            State          // StateSucceeded or StateFailed
	Reason           error          // Set when State is StateFailed, matches one of the common errors
	ArtifactLocation string
	Token            string // Revocation token of the delivery, if the sink issued one
	ArchiveName      string
	Size             int64
	ItemsSucceeded   int
	ItemsFailed      int
}

func (r *PipelineResult) Succeeded() bool {
	return r.State == StateSucceeded
}

// ArchiveArtifact is a finalized archive.
type ArchiveArtifact struct {
	Name      string   // Archive name without extension
	Data      []byte   // Serialized zip
	Entries   []string // Entry names in archive order
	Checksum  string   // sha1 of Data
	CreatedAt time.Time
}

// FileName is the name the artifact is offered or stored under.
func (a *ArchiveArtifact) FileName() string {
	return a.Name + ".zip"
}

// Delivery describes where a sink made an artifact available.
type Delivery struct {
	Location  string    // File path or URL
	Token     string    // Revocation token, empty for persistent sinks
	ExpiresAt time.Time // Zero for persistent sinks
}
