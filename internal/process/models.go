package process

import "time"

// Request tracks one bulk ingestion run.
//
// Lifecycle: Initialised -> Processing -> Done | PartiallyDone | Error. Terminal states are final.
type Request struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	FileName     string    `json:"fileName"`
	Status       Status    `json:"status"`
	TotalRows    int       `json:"totalRows"`
	SuccessCount int       `json:"successCount"`
	ErrorCount   int       `json:"errorCount"`
	LogFile      string    `json:"logFile,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Status string

const (
	StatusInitialised   Status = "Initialised"
	StatusProcessing    Status = "Processing"
	StatusDone          Status = "Done"
	StatusPartiallyDone Status = "PartiallyDone"
	StatusError         Status = "Error"
)

func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusPartiallyDone || s == StatusError
}

var transitions = map[Status][]Status{
	StatusInitialised: {StatusProcessing, StatusError},
	StatusProcessing:  {StatusDone, StatusPartiallyDone, StatusError},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
