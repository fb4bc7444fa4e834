package filestore

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/comfyendpoints/runtime/internal/domain"
)

// ErrTerminal is returned when a caller attempts to transition a job that
// has already reached a terminal state. Terminal states are sticky.
var ErrTerminal = errors.New("filestore: job already terminal")

// ErrJobNotFound is returned when no job matches the given id.
var ErrJobNotFound = errors.New("filestore: job not found")

// NewJobID returns a fresh opaque job id: 32 lowercase hex characters.
func NewJobID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// CreateJob inserts a new job row in the Queued state with the verbatim
// request body recorded as InputPayload.
func (s *Store) CreateJob(inputPayload json.RawMessage) (*domain.JobRecord, error) {
	rec := &domain.JobRecord{
		JobID:        NewJobID(),
		State:        domain.JobQueued,
		InputPayload: inputPayload,
		CreatedAt:    time.Now().UTC(),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.write.Exec(
		`INSERT INTO jobs (job_id, state, input_payload, output_payload, error, cancel_requested, prompt_id, created_at)
		 VALUES (?, ?, ?, NULL, '', 0, '', ?)`,
		rec.JobID, string(rec.State), string(rec.InputPayload), rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("filestore: insert job row: %w", err)
	}
	return rec, nil
}

// GetJob returns the current job record for jobID, or ErrJobNotFound.
func (s *Store) GetJob(jobID string) (*domain.JobRecord, error) {
	row := s.read.QueryRow(
		`SELECT job_id, state, input_payload, output_payload, error, cancel_requested, prompt_id, created_at
		 FROM jobs WHERE job_id = ?`, jobID,
	)
	rec, err := scanJobRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: get job: %w", err)
	}
	return rec, nil
}

func scanJobRow(row rowScanner) (*domain.JobRecord, error) {
	var rec domain.JobRecord
	var state, outputPayload, createdAt string
	var cancelRequested int
	if err := row.Scan(&rec.JobID, &state, &rec.InputPayload, &nullableString{&outputPayload}, &rec.Error,
		&cancelRequested, &rec.PromptID, &createdAt); err != nil {
		return nil, err
	}
	rec.State = domain.JobState(state)
	rec.CancelRequested = cancelRequested != 0
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = t
	if outputPayload != "" {
		var out domain.JobOutput
		if err := json.Unmarshal([]byte(outputPayload), &out); err != nil {
			return nil, fmt.Errorf("parse output_payload: %w", err)
		}
		rec.OutputPayload = &out
	}
	return &rec, nil
}

// nullableString adapts a NULL-capable sqlite TEXT column into a plain
// string destination, treating NULL as "".
type nullableString struct {
	dest *string
}

func (n *nullableString) Scan(src any) error {
	if src == nil {
		*n.dest = ""
		return nil
	}
	switch v := src.(type) {
	case string:
		*n.dest = v
	case []byte:
		*n.dest = string(v)
	default:
		return fmt.Errorf("unsupported scan type %T", src)
	}
	return nil
}

// transition applies fn only if the job is not already in a terminal
// state, returning ErrTerminal otherwise. It re-reads the row under the
// write lock so the terminal check and the update are atomic with respect
// to other writers.
func (s *Store) transition(jobID string, fn func(*domain.JobRecord) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	row := s.write.QueryRow(
		`SELECT job_id, state, input_payload, output_payload, error, cancel_requested, prompt_id, created_at
		 FROM jobs WHERE job_id = ?`, jobID,
	)
	rec, err := scanJobRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("filestore: read job for transition: %w", err)
	}
	if rec.State.Terminal() {
		return ErrTerminal
	}
	return fn(rec)
}

// MarkRunning moves a queued job to Running.
func (s *Store) MarkRunning(jobID string) error {
	return s.transition(jobID, func(rec *domain.JobRecord) error {
		_, err := s.write.Exec(`UPDATE jobs SET state = ? WHERE job_id = ?`, string(domain.JobRunning), jobID)
		return err
	})
}

// SetPromptID records the engine-assigned prompt id for a running job.
func (s *Store) SetPromptID(jobID, promptID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.write.Exec(`UPDATE jobs SET prompt_id = ? WHERE job_id = ?`, promptID, jobID)
	return err
}

// MarkCompleted moves a job to the terminal Completed state with its
// result payload.
func (s *Store) MarkCompleted(jobID string, output *domain.JobOutput) error {
	return s.transition(jobID, func(rec *domain.JobRecord) error {
		data, err := json.Marshal(output)
		if err != nil {
			return fmt.Errorf("filestore: marshal output: %w", err)
		}
		_, err = s.write.Exec(`UPDATE jobs SET state = ?, output_payload = ? WHERE job_id = ?`,
			string(domain.JobCompleted), string(data), jobID)
		return err
	})
}

// MarkFailed moves a job to the terminal Failed state with a taxonomy error string.
func (s *Store) MarkFailed(jobID, errStr string) error {
	return s.transition(jobID, func(rec *domain.JobRecord) error {
		_, err := s.write.Exec(`UPDATE jobs SET state = ?, error = ? WHERE job_id = ?`,
			string(domain.JobFailed), errStr, jobID)
		return err
	})
}

// MarkCanceled moves a job to the terminal Canceled state.
func (s *Store) MarkCanceled(jobID string) error {
	return s.transition(jobID, func(rec *domain.JobRecord) error {
		_, err := s.write.Exec(`UPDATE jobs SET state = ? WHERE job_id = ?`, string(domain.JobCanceled), jobID)
		return err
	})
}

// RequestCancel sets cancel_requested on a non-terminal job; idempotent,
// and a no-op on a terminal job.
func (s *Store) RequestCancel(jobID string) (*domain.JobRecord, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	row := s.write.QueryRow(
		`SELECT job_id, state, input_payload, output_payload, error, cancel_requested, prompt_id, created_at
		 FROM jobs WHERE job_id = ?`, jobID,
	)
	rec, err := scanJobRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read job for cancel: %w", err)
	}
	if rec.State.Terminal() {
		rec.CancelRequested = false
		return rec, nil
	}
	if !rec.CancelRequested {
		if _, err := s.write.Exec(`UPDATE jobs SET cancel_requested = 1 WHERE job_id = ?`, jobID); err != nil {
			return nil, fmt.Errorf("filestore: set cancel_requested: %w", err)
		}
		rec.CancelRequested = true
	}
	return rec, nil
}
