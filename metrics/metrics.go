package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nci/stacube/reconcile"
)

type ExtentInfo struct {
	BBox  []float64 `json:"bbox"`
	Start string    `json:"start"`
	End   string    `json:"end"`
	CRS   string    `json:"crs,omitempty"`
}

// ConversionInfo is the record emitted once per command run.
type ConversionInfo struct {
	Command       string        `json:"command"`
	RunID         string        `json:"run_id"`
	StartTime     string        `json:"start_time"`
	Duration      time.Duration `json:"duration"`
	Input         []string      `json:"input"`
	OutputDir     string        `json:"output_dir"`
	NumItems      int           `json:"num_items"`
	NumAssets     int           `json:"num_assets"`
	NumTimeSlices int           `json:"num_time_slices"`
	NumChunks     int64         `json:"num_chunks"`
	BytesWritten  int64         `json:"bytes_written"`
	FilesWritten  int           `json:"files_written"`
	Extent        *ExtentInfo   `json:"extent,omitempty"`
	Error         string        `json:"error,omitempty"`
	ErrorKind     string        `json:"error_kind,omitempty"`
}

type Collector struct {
	Info   *ConversionInfo
	start  time.Time
	logger Logger
}

func NewCollector(command, runID string, logger Logger) *Collector {
	now := time.Now().UTC()
	return &Collector{
		Info: &ConversionInfo{
			Command:   command,
			RunID:     runID,
			StartTime: now.Format(time.RFC3339),
		},
		start:  now,
		logger: logger,
	}
}

// AddChunks is safe for concurrent use by chunk writers.
func (m *Collector) AddChunks(n int64, bytes int64) {
	atomic.AddInt64(&m.Info.NumChunks, n)
	atomic.AddInt64(&m.Info.BytesWritten, bytes)
}

func (m *Collector) SetExtent(e reconcile.Extent) {
	m.Info.Extent = &ExtentInfo{
		BBox:  e.Spatial.Slice(),
		Start: reconcile.FormatTime(e.Temporal.Start),
		End:   reconcile.FormatTime(e.Temporal.End),
		CRS:   e.ReferenceSystem.String(),
	}
}

// Finish stamps the duration and outcome, then logs the record.
func (m *Collector) Finish(err error) {
	m.Info.Duration = time.Since(m.start)
	if err != nil {
		m.Info.Error = err.Error()
		if kind := reconcile.KindOf(err); kind != nil {
			m.Info.ErrorKind = kind.Error()
		}
	}
	if m.logger != nil {
		m.logger.Log(m.Info)
	}
}

func (i *ConversionInfo) ToJSON() (string, error) {
	if i == nil {
		return "", errors.New("metrics: nil record")
	}
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(i); err != nil {
		return "", err
	}
	return buf.String(), nil
}
