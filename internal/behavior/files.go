package behavior

import (
	"strings"

	"go.uber.org/zap"

	"github.com/acheong08/spr-behavior/pkg/models"
)

// FileActivityHandler classifies every file touched by the traced processes
type FileActivityHandler struct {
	eventTypes
	opts options

	// one table per pid; descriptors are never shared across processes
	tables map[int]*DescriptorTable

	sawSentinel      bool
	workingDirectory string
	opened           stringSet
	toAppend         stringSet
	toWrite          stringSet
	readonly         stringSet
	created          stringSet
	failed           stringSet
	directories      stringSet
	read             stringSet
	written          stringSet

	report *models.FilesReport
}

// NewFileActivityHandler creates a handler for process events
func NewFileActivityHandler(opts ...Option) *FileActivityHandler {
	return &FileActivityHandler{
		eventTypes:  eventTypes{models.DefaultEventType},
		opts:        buildOptions(opts),
		tables:      make(map[int]*DescriptorTable),
		opened:      make(stringSet),
		toAppend:    make(stringSet),
		toWrite:     make(stringSet),
		readonly:    make(stringSet),
		created:     make(stringSet),
		failed:      make(stringSet),
		directories: make(stringSet),
		read:        make(stringSet),
		written:     make(stringSet),
	}
}

func (h *FileActivityHandler) Key() string {
	return models.KeyFiles
}

func (h *FileActivityHandler) Accepts(event *models.Event) bool {
	return h.accepts(event)
}

func (h *FileActivityHandler) Handle(event *models.Event) {
	if h.report != nil {
		h.opts.logger.Warn("event received after finalize", zap.String("handler", h.Key()), zap.Int("pid", event.ProcessID))
		return
	}

	if !h.sawSentinel && event.ProcessName == h.opts.sentinelName {
		h.sawSentinel = true
		h.workingDirectory = strings.TrimSuffix(event.CommandLine, h.opts.sentinelSuffix)
	}

	table, ok := h.tables[event.ProcessID]
	if !ok {
		table = NewDescriptorTable()
		h.tables[event.ProcessID] = table
	}

	for i := range event.Calls {
		call := &event.Calls[i]
		sc, err := Decode(call)
		if err != nil {
			h.opts.logger.Debug("skipping call", zap.Int("pid", event.ProcessID), zap.Error(err))
			h.opts.recorder.CallSkipped(h.Key(), call.API)
			continue
		}

		switch c := sc.(type) {
		case OpenCall:
			h.handleOpen(table, c)
		case IOCall:
			h.handleIO(event.ProcessID, table, c)
		}
	}
}

func (h *FileActivityHandler) handleOpen(table *DescriptorTable, c OpenCall) {
	if !c.Succeeded() {
		h.failed.add(c.Path)
		return
	}

	table.Register(int(c.Return), c.Path, c.Flags)
	h.opened.add(c.Path)

	if c.Flags.Has(FlagDirectory) {
		h.directories.add(c.Path)
	}
	if c.Flags.Has(FlagAppend) {
		h.toAppend.add(c.Path)
	}

	// O_CREAT wins over the access mode
	switch {
	case c.Flags.Has(FlagCreate):
		h.created.add(c.Path)
	case c.Flags.Has(FlagReadOnly):
		h.readonly.add(c.Path)
	case c.Flags.Has(FlagWriteOnly):
		h.toWrite.add(c.Path)
	}
}

func (h *FileActivityHandler) handleIO(pid int, table *DescriptorTable, c IOCall) {
	if IsStandardDescriptor(c.Descriptor) {
		return
	}

	api := "read"
	if c.Kind == IOWrite {
		api = "write"
	}

	entry, ok := table.Lookup(c.Descriptor)
	if !ok {
		h.opts.logger.Warn("unknown file descriptor",
			zap.String("api", api),
			zap.Int("pid", pid),
			zap.Int("fd", c.Descriptor))
		h.opts.recorder.UnknownDescriptor(api)
		return
	}
	if !c.Succeeded() {
		return
	}

	if c.Kind == IOWrite {
		h.written.add(entry.Path)
	} else {
		h.read.add(entry.Path)
	}
}

func (h *FileActivityHandler) Finalize() any {
	if h.report == nil {
		h.report = &models.FilesReport{
			WorkingDirectory: h.workingDirectory,
			ReadFilenames:    h.read.sorted(),
			WrittenFilenames: h.written.sorted(),
			Opened: models.OpenedFiles{
				All:      h.opened.sorted(),
				ToAppend: h.toAppend.sorted(),
				ToWrite:  h.toWrite.sorted(),
				Readonly: h.readonly.sorted(),
				Created:  h.created.sorted(),
				Failed:   h.failed.sorted(),
			},
			Directories: h.directories.sorted(),
		}
	}
	return h.report
}
