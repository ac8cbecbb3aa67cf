package aggregate

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/acheong08/spr-behavior/pkg/models"
)

// DedupedResult represents the result after deduplication
type DedupedResult struct {
	Collection     string                `json:"collection" yaml:"collection"`
	BaselineSource string                `json:"baseline_source" yaml:"baseline_source"`
	Files          *models.FilesReport   `json:"files" yaml:"files"`
	Network        *models.NetworkReport `json:"network" yaml:"network"`
	SyscallProfile map[string]int        `json:"syscall_profile" yaml:"syscall_profile"`

	RemovedFileEntries int `json:"removed_file_entries" yaml:"removed_file_entries"`
	RemovedEndpoints   int `json:"removed_endpoints" yaml:"removed_endpoints"`
	RemovedSyscalls    int `json:"removed_syscalls" yaml:"removed_syscalls"`
}

// LoadResult loads an aggregation result from a JSON file
func LoadResult(filename string) (*Result, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if result.Summary == nil {
		result.Summary = &models.Summary{}
	}

	return &result, nil
}

// Dedup subtracts baseline activity from target activity. Paths and endpoints
// seen in the same baseline set are dropped; api counts keep only the excess
// over the baseline, summed across processes since pids differ between runs.
func Dedup(target *Result, baseline *Result) *DedupedResult {
	target, baseline = orEmpty(target), orEmpty(baseline)
	result := &DedupedResult{
		Collection:     target.Collection,
		BaselineSource: baseline.Collection,
		SyscallProfile: make(map[string]int),
	}

	tf, bf := target.Summary.Files, baseline.Summary.Files
	if tf != nil {
		if bf == nil {
			bf = &models.FilesReport{}
		}
		files := &models.FilesReport{WorkingDirectory: tf.WorkingDirectory}
		sets := []struct {
			dst              *[]string
			target, baseline []string
		}{
			{&files.ReadFilenames, tf.ReadFilenames, bf.ReadFilenames},
			{&files.WrittenFilenames, tf.WrittenFilenames, bf.WrittenFilenames},
			{&files.Directories, tf.Directories, bf.Directories},
			{&files.Opened.All, tf.Opened.All, bf.Opened.All},
			{&files.Opened.ToAppend, tf.Opened.ToAppend, bf.Opened.ToAppend},
			{&files.Opened.ToWrite, tf.Opened.ToWrite, bf.Opened.ToWrite},
			{&files.Opened.Readonly, tf.Opened.Readonly, bf.Opened.Readonly},
			{&files.Opened.Created, tf.Opened.Created, bf.Opened.Created},
			{&files.Opened.Failed, tf.Opened.Failed, bf.Opened.Failed},
		}
		for _, s := range sets {
			var removed int
			*s.dst, removed = subtract(s.target, s.baseline)
			result.RemovedFileEntries += removed
		}
		result.Files = files
	}

	tn, bn := target.Summary.Network, baseline.Summary.Network
	if tn != nil {
		if bn == nil {
			bn = &models.NetworkReport{}
		}
		network := &models.NetworkReport{}
		var removedIPs, removedSockets int
		network.ConnectedIPs, removedIPs = subtract(tn.ConnectedIPs, bn.ConnectedIPs)
		network.ConnectedSockets, removedSockets = subtract(tn.ConnectedSockets, bn.ConnectedSockets)
		result.RemovedEndpoints = removedIPs + removedSockets
		result.Network = network
	}

	baselineProfile := collapse(baseline.Summary.APIStats)
	for api, count := range collapse(target.Summary.APIStats) {
		if baselineCount, exists := baselineProfile[api]; !exists || count > baselineCount {
			// Keep the difference if count is higher
			if exists {
				result.SyscallProfile[api] = count - baselineCount
			} else {
				result.SyscallProfile[api] = count
			}
		} else {
			result.RemovedSyscalls++
		}
	}

	return result
}

// subtract keeps the target entries absent from baseline, preserving order
func subtract(target, baseline []string) ([]string, int) {
	seen := make(map[string]struct{}, len(baseline))
	for _, v := range baseline {
		seen[v] = struct{}{}
	}

	kept := make([]string, 0, len(target))
	removed := 0
	for _, v := range target {
		if _, ok := seen[v]; ok {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	return kept, removed
}

// collapse sums per-process api counts into one profile
func collapse(stats models.APIStats) map[string]int {
	profile := make(map[string]int)
	for _, counts := range stats {
		for api, count := range counts {
			profile[api] += count
		}
	}
	return profile
}

// orEmpty substitutes an empty summary for a missing one
func orEmpty(r *Result) *Result {
	if r == nil {
		return &Result{Summary: &models.Summary{}}
	}
	if r.Summary == nil {
		c := *r
		c.Summary = &models.Summary{}
		return &c
	}
	return r
}
