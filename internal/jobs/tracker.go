package jobs

import "time"

// Tracker maintains the per-stage state machine of a job. Every mutation
// goes through Store.Update so snapshots stay consistent and a deleted job
// surfaces ErrNotFound instead of being resurrected.
//
// Per stage: pending -> running -> {done, error}. Terminal stage states are
// never re-entered.
type Tracker struct {
	store *Store
}

func NewTracker(store *Store) *Tracker {
	return &Tracker{store: store}
}

// Begin initializes every planned stage to pending at 0%.
func (t *Tracker) Begin(id string, plan []StageName) error {
	return t.store.Update(id, func(job *Job) {
		job.Plan = append([]StageName(nil), plan...)
		job.Stages = make(map[StageName]*Stage, len(plan))
		for _, name := range plan {
			job.Stages[name] = &Stage{Status: StageStatusPending, Detail: "Waiting"}
		}
	})
}

// StartStage transitions a pending stage to running. The first stage start
// also flips the job to processing and stamps StartedAt.
func (t *Tracker) StartStage(id string, name StageName, detail string) error {
	return t.store.Update(id, func(job *Job) {
		stage := job.Stages[name]
		if stage == nil || stage.Status != StageStatusPending {
			return
		}
		stage.Status = StageStatusRunning
		stage.Detail = detail
		if job.StartedAt == nil {
			now := time.Now().UTC()
			job.StartedAt = &now
		}
		if job.Status == StatusPending {
			job.Status = StatusProcessing
		}
		job.Progress = detail
	})
}

// Progress updates a running stage's percentage and detail. Regressing
// percentages are ignored so displayed progress is monotonic.
func (t *Tracker) Progress(id string, name StageName, pct int, detail string) error {
	return t.store.Update(id, func(job *Job) {
		stage := job.Stages[name]
		if stage == nil || stage.Status != StageStatusRunning {
			return
		}
		if pct > 100 {
			pct = 100
		}
		if pct > stage.Progress {
			stage.Progress = pct
		}
		if detail != "" {
			stage.Detail = detail
			job.Progress = detail
		}
	})
}

// SubTask upserts one entry in a fan-out stage's sub-task map. Updates may
// arrive in any order.
func (t *Tracker) SubTask(id string, name StageName, task string, status StageStatus) error {
	return t.store.Update(id, func(job *Job) {
		stage := job.Stages[name]
		if stage == nil || stage.Status.Terminal() {
			return
		}
		if stage.SubTasks == nil {
			stage.SubTasks = make(map[string]StageStatus)
		}
		stage.SubTasks[task] = status
	})
}

// FinishStage transitions a running stage to done or error. Done forces
// progress to 100 and upgrades any sub-task still pending or running, so a
// finished stage never reports unfinished sub-tasks.
func (t *Tracker) FinishStage(id string, name StageName, outcome StageStatus, detail string) error {
	if outcome != StageStatusDone && outcome != StageStatusError {
		outcome = StageStatusError
	}
	return t.store.Update(id, func(job *Job) {
		stage := job.Stages[name]
		if stage == nil || stage.Status.Terminal() {
			return
		}
		stage.Status = outcome
		stage.Detail = detail
		if outcome == StageStatusDone {
			stage.Progress = 100
			for task, status := range stage.SubTasks {
				if !status.Terminal() {
					stage.SubTasks[task] = StageStatusDone
				}
			}
		}
		job.Progress = detail
	})
}

// Complete freezes the job with its result. Result and Error are mutually
// exclusive in terminal states.
func (t *Tracker) Complete(id string, result *Result) error {
	return t.store.Update(id, func(job *Job) {
		if job.Status.Terminal() {
			return
		}
		now := time.Now().UTC()
		job.Status = StatusCompleted
		job.Result = result
		job.Error = ""
		job.CompletedAt = &now
		job.Progress = "Completed"
	})
}

// Fail freezes the job with a user-readable error message.
func (t *Tracker) Fail(id string, message string) error {
	return t.store.Update(id, func(job *Job) {
		if job.Status.Terminal() {
			return
		}
		now := time.Now().UTC()
		job.Status = StatusFailed
		job.Error = message
		job.Result = nil
		job.CompletedAt = &now
		job.Progress = "Failed"
	})
}

// Aggregate returns the mean progress over the planned stages. Stages not
// yet started count as zero. Display-only; no correctness hangs off it.
func Aggregate(job *Job) int {
	if job == nil || len(job.Plan) == 0 {
		return 0
	}
	total := 0
	for _, name := range job.Plan {
		if stage := job.Stages[name]; stage != nil {
			total += stage.Progress
		}
	}
	return total / len(job.Plan)
}
