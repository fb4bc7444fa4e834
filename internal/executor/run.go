package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/comfyendpoints/runtime/internal/domain"
	"github.com/comfyendpoints/runtime/internal/filestore"
	"github.com/comfyendpoints/runtime/internal/logging"
	"github.com/comfyendpoints/runtime/internal/mapper"
	"github.com/comfyendpoints/runtime/internal/observability"
)

func (e *Executor) fail(jobID, errStr string) {
	if err := e.store.MarkFailed(jobID, errStr); err != nil {
		logging.Op().Error("mark job failed", "job_id", jobID, "error", err)
	}
	e.recordTransition("failed")
	e.logJobSummary(jobID, false, errStr, false)
}

// logJobSummary emits a JobLog entry for a terminal job. Duration is
// measured against the job's CreatedAt, best-effort: a failed reload
// just omits the duration rather than blocking the terminal transition.
func (e *Executor) logJobSummary(jobID string, success bool, errStr string, canceled bool) {
	entry := &logging.JobLog{JobID: jobID, Success: success, Error: errStr, Canceled: canceled}
	if job, err := e.store.GetJob(jobID); err == nil {
		entry.DurationMs = time.Since(job.CreatedAt).Milliseconds()
		if job.OutputPayload != nil {
			entry.ArtifactCount = len(job.OutputPayload.Result)
		}
	}
	logging.Default().Log(entry)
}

// runJob executes the full lifecycle for one job id: map the input
// payload to a submittable graph, submit it to the engine, poll for
// completion, collect artifacts, and record the terminal status.
func (e *Executor) runJob(ctx context.Context, jobID string) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "executor.run_job", observability.AttrJobID.String(jobID))
	defer func() {
		span.SetAttributes(observability.AttrDurationMs.Int64(time.Since(start).Milliseconds()))
		span.End()
	}()

	job, err := e.store.GetJob(jobID)
	if err != nil {
		logging.Op().Error("load job", "job_id", jobID, "error", err)
		return
	}
	if job.State.Terminal() {
		return
	}

	if err := e.store.MarkRunning(jobID); err != nil {
		logging.Op().Error("mark job running", "job_id", jobID, "error", err)
		return
	}
	e.recordTransition("running")

	var inputPayload map[string]any
	if err := json.Unmarshal(job.InputPayload, &inputPayload); err != nil {
		e.fail(jobID, "VALIDATION_ERROR:invalid_json")
		return
	}

	if err := e.resolveMediaInputs(inputPayload); err != nil {
		e.fail(jobID, err.Error())
		return
	}

	artifactsDir, err := e.store.ArtifactDir(jobID)
	if err != nil {
		e.fail(jobID, fmt.Sprintf("FILE_STORE_ERROR:%v", err))
		return
	}
	coords := mapper.RuntimeCoordinates{JobID: jobID, ArtifactsDir: artifactsDir, StateDBPath: e.stateDBPath()}

	graphPayload, err := mapper.MapContractPayloadToPrompt(e.workflow, e.contract, inputPayload, coords)
	if err != nil {
		e.fail(jobID, fmt.Sprintf("VALIDATION_ERROR:%v", err))
		return
	}
	prompt, _ := graphPayload["prompt"].(map[string]any)

	promptID, err := e.engine.Submit(ctx, prompt)
	if err != nil {
		e.fail(jobID, fmt.Sprintf("QUEUE_ERROR:%v", err))
		return
	}
	span.SetAttributes(observability.AttrPromptID.String(promptID))
	if err := e.store.SetPromptID(jobID, promptID); err != nil {
		logging.Op().Error("set prompt id", "job_id", jobID, "error", err)
	}

	e.awaitArtifacts(ctx, jobID, promptID)
}

func (e *Executor) stateDBPath() string {
	return e.cfg.StateDBPath
}

// resolveMediaInputs replaces any media-typed input value beginning with
// "fid_" with its local on-disk path, in place on payload.
func (e *Executor) resolveMediaInputs(payload map[string]any) error {
	for _, field := range e.contract.Inputs {
		if !field.Type.IsMedia() {
			continue
		}
		raw, ok := payload[field.Name]
		if !ok {
			continue
		}
		str, ok := raw.(string)
		if !ok || !strings.HasPrefix(str, "fid_") {
			continue
		}
		rec, err := e.store.GetFile(str)
		if err != nil {
			return fmt.Errorf("VALIDATION_ERROR:unknown_media_file_id:%s", field.Name)
		}
		payload[field.Name] = rec.StoragePath
	}
	return nil
}

func expectedOutputNames(contract *domain.WorkflowContract) []string {
	names := make([]string, len(contract.Outputs))
	for i, f := range contract.Outputs {
		names[i] = f.Name
	}
	return names
}

func missingNames(expected []string, present map[string]any) []string {
	var missing []string
	for _, name := range expected {
		if _, ok := present[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// historyDone reports whether the engine's history object records promptID
// as finished. ComfyUI-style engines only populate a history entry once a
// prompt has finished executing, so presence is the completion signal.
func historyDone(history map[string]any, promptID string) bool {
	entry, ok := history[promptID]
	return ok && entry != nil
}

// awaitArtifacts polls the File Store's artifacts directory until every
// contract output is present, handling cancellation, the engine-done grace
// window, and the overall output timeout.
func (e *Executor) awaitArtifacts(ctx context.Context, jobID, promptID string) {
	expected := expectedOutputNames(e.contract)
	deadline := time.Now().Add(e.cfg.OutputTimeout)
	ticker := time.NewTicker(e.cfg.OutputPollInterval)
	defer ticker.Stop()

	var graceDeadline time.Time
	graceStarted := false

	for {
		artifacts, err := e.store.ReadArtifacts(jobID)
		if err != nil {
			e.fail(jobID, fmt.Sprintf("FILE_STORE_ERROR:%v", err))
			return
		}
		if len(missingNames(expected, artifacts)) == 0 {
			e.finishSuccess(jobID, promptID, artifacts)
			return
		}

		job, err := e.store.GetJob(jobID)
		if err != nil {
			logging.Op().Error("poll load job", "job_id", jobID, "error", err)
		} else if job.CancelRequested {
			e.cancelJob(ctx, jobID, promptID)
			return
		}

		if time.Now().After(deadline) {
			e.fail(jobID, fmt.Sprintf("OUTPUT_TIMEOUT:missing_artifacts:%s", strings.Join(missingNames(expected, artifacts), ",")))
			return
		}

		if !graceStarted {
			history, err := e.engine.History(ctx, promptID)
			if err == nil && historyDone(history, promptID) {
				graceStarted = true
				graceDeadline = time.Now().Add(e.cfg.ArtifactGracePeriod)
			}
		} else if time.Now().After(graceDeadline) {
			e.fail(jobID, fmt.Sprintf("MISSING_ARTIFACTS:%s", strings.Join(missingNames(expected, artifacts), ",")))
			return
		}

		select {
		case <-ticker.C:
		case <-e.stopCh:
			return
		}
	}
}

func (e *Executor) cancelJob(ctx context.Context, jobID, promptID string) {
	_ = e.engine.Interrupt(ctx)
	_ = e.engine.CancelQueued(ctx, promptID)
	if err := e.store.MarkCanceled(jobID); err != nil && err != filestore.ErrTerminal {
		logging.Op().Error("mark job canceled", "job_id", jobID, "error", err)
	}
	e.recordTransition("canceled")
	e.logJobSummary(jobID, false, "", true)
}

func (e *Executor) finishSuccess(jobID, promptID string, artifacts map[string]any) {
	result := make(map[string]any, len(e.contract.Outputs))
	for _, field := range e.contract.Outputs {
		raw := artifacts[field.Name]
		if field.Type.IsMedia() {
			str, ok := raw.(string)
			if !ok || !strings.HasPrefix(str, "fid_") {
				e.fail(jobID, fmt.Sprintf("OUTPUT_TYPE_ERROR:invalid_media_output:%s", field.Name))
				return
			}
			result[field.Name] = str
			continue
		}
		coerced, err := coerceScalar(field.Type, raw)
		if err != nil {
			e.fail(jobID, fmt.Sprintf("%v:%s", err, field.Name))
			return
		}
		result[field.Name] = coerced
	}

	output := &domain.JobOutput{PromptID: promptID, Status: "completed", Result: result}
	if err := e.store.MarkCompleted(jobID, output); err != nil {
		logging.Op().Error("mark job completed", "job_id", jobID, "error", err)
	}
	e.recordTransition("completed")
	e.logJobSummary(jobID, true, "", false)
}
