package models

// Report category keys
const (
	KeyFiles    = "files"
	KeyNetwork  = "network"
	KeyAPIStats = "apistats"
)

// FilesReport classifies every file touched by the traced processes
type FilesReport struct {
	WorkingDirectory string      `json:"working_directory" yaml:"working_directory"`
	ReadFilenames    []string    `json:"read_filenames" yaml:"read_filenames"`
	WrittenFilenames []string    `json:"written_filenames" yaml:"written_filenames"`
	Opened           OpenedFiles `json:"opened" yaml:"opened"`
	Directories      []string    `json:"directories" yaml:"directories"`
}

// OpenedFiles holds the overlapping open-classification sets
type OpenedFiles struct {
	All      []string `json:"all" yaml:"all"`
	ToAppend []string `json:"to_append" yaml:"to_append"`
	ToWrite  []string `json:"to_write" yaml:"to_write"`
	Readonly []string `json:"readonly" yaml:"readonly"`
	Created  []string `json:"created" yaml:"created"`
	Failed   []string `json:"failed" yaml:"failed"`
}

// NetworkReport lists the distinct remote endpoints contacted via connect
type NetworkReport struct {
	ConnectedIPs     []string `json:"connected_ips" yaml:"connected_ips"`
	ConnectedSockets []string `json:"connected_sockets" yaml:"connected_sockets"`
}

// APIStats maps process id -> api name -> call count
type APIStats map[string]map[string]int

// Summary is the merged output of every handler, keyed by category
type Summary struct {
	Files    *FilesReport   `json:"files,omitempty" yaml:"files,omitempty"`
	Network  *NetworkReport `json:"network,omitempty" yaml:"network,omitempty"`
	APIStats APIStats       `json:"apistats,omitempty" yaml:"apistats,omitempty"`
}
