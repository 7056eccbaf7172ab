package model

import "time"

// Entry is one item of a remote directory listing.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	IsDir   bool      `json:"is_dir"`
	ModTime time.Time `json:"mod_time,omitzero"`
}

type ScanEntry struct {
	Path            string `json:"path"`
	Size            int64  `json:"size"`
	ParentDirectory string `json:"parent_directory"`
}

type PathFailure struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type ScanResult struct {
	Entries     []ScanEntry   `json:"entries"`
	Directories int           `json:"directories"`
	Partial     bool          `json:"partial"`
	Reason      string        `json:"reason,omitempty"`
	Failures    []PathFailure `json:"failures,omitempty"`
}
