package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// blobVersion is the shape version written into every JSON column.
const blobVersion = 1

// ErrCorruptRow is returned when a stored row cannot be decoded.
var ErrCorruptRow = errors.New("corrupt job row")

type jobRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	SourceRef string    `gorm:"not null"`
	Status    Status    `gorm:"size:16;not null;index:idx_jobs_status_created,priority:1"`
	Progress  string    `gorm:"type:text;not null"`
	Options   string    `gorm:"type:text;not null"`
	Result    *string   `gorm:"type:text"`
	Error     *string   `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null;index:idx_jobs_status_created,priority:2"`
	UpdatedAt time.Time `gorm:"not null;index:idx_jobs_updated_at"`
}

func (jobRow) TableName() string { return "jobs" }

type envelope struct {
	V    int             `json:"v"`
	Data json.RawMessage `json:"data"`
}

func encodeBlob(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(envelope{V: blobVersion, Data: data})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeBlob(s string, out any) error {
	var env envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return err
	}
	if env.V != blobVersion {
		return fmt.Errorf("unsupported blob version %d", env.V)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return errors.New("empty blob")
	}
	return json.Unmarshal(env.Data, out)
}

// toRow serializes a Job for storage.
func toRow(j *Job) (jobRow, error) {
	row := jobRow{
		ID:        j.ID,
		SourceRef: j.SourceRef,
		Status:    j.Status,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	var err error
	if row.Progress, err = encodeBlob(j.Progress); err != nil {
		return jobRow{}, fmt.Errorf("encode progress: %w", err)
	}
	if row.Options, err = encodeBlob(j.Options); err != nil {
		return jobRow{}, fmt.Errorf("encode options: %w", err)
	}
	if j.Result != nil {
		s, err := encodeBlob(j.Result)
		if err != nil {
			return jobRow{}, fmt.Errorf("encode result: %w", err)
		}
		row.Result = &s
	}
	if j.Error != nil {
		s, err := encodeBlob(j.Error)
		if err != nil {
			return jobRow{}, fmt.Errorf("encode error: %w", err)
		}
		row.Error = &s
	}
	return row, nil
}

// fromRow deserializes a stored row. Any undecodable column fails the whole
// row with ErrCorruptRow.
func fromRow(row jobRow) (*Job, error) {
	if !row.Status.Valid() {
		return nil, fmt.Errorf("%w %s: unknown status %q", ErrCorruptRow, row.ID, row.Status)
	}
	j := &Job{
		ID:        row.ID,
		SourceRef: row.SourceRef,
		Status:    row.Status,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := decodeBlob(row.Progress, &j.Progress); err != nil {
		return nil, fmt.Errorf("%w %s: progress: %v", ErrCorruptRow, row.ID, err)
	}
	if err := decodeBlob(row.Options, &j.Options); err != nil {
		return nil, fmt.Errorf("%w %s: options: %v", ErrCorruptRow, row.ID, err)
	}
	if row.Result != nil {
		j.Result = &Result{}
		if err := decodeBlob(*row.Result, j.Result); err != nil {
			return nil, fmt.Errorf("%w %s: result: %v", ErrCorruptRow, row.ID, err)
		}
	}
	if row.Error != nil {
		j.Error = &ErrorInfo{}
		if err := decodeBlob(*row.Error, j.Error); err != nil {
			return nil, fmt.Errorf("%w %s: error: %v", ErrCorruptRow, row.ID, err)
		}
	}
	if j.Result != nil && j.Error != nil {
		return nil, fmt.Errorf("%w %s: both result and error set", ErrCorruptRow, row.ID)
	}
	return j, nil
}
