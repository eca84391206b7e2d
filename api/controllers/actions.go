package controllers

import (
	"net/http"

	"github.com/angelmondragon/caisseflow/api/responses"
	"github.com/angelmondragon/caisseflow/api/validators"
	"github.com/angelmondragon/caisseflow/internal/actions"
	"github.com/angelmondragon/caisseflow/internal/workflow"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/logger"
)

// ActionEnqueue queues a workflow action and acknowledges it with 202 and
// the job id. The outcome is read back through ActionGet.
func ActionEnqueue(svc actions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "action queue unavailable"))
			return
		}

		var action workflow.Action
		if err := validators.DecodeJSON(r, &action); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action.Actor = actorOf(r, action.Actor)

		job, err := svc.Enqueue(r.Context(), action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Location", "/api/v1/actions/"+job.ID.String())
		responses.WriteAccepted(w, map[string]any{
			"job_id":    job.ID,
			"status":    job.Status,
			"type":      job.ActionType,
			"target_id": job.TargetID,
		})
	}
}

func ActionGet(svc actions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := validators.PathUUID(r, "jobId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		job, err := svc.Get(r.Context(), jobID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newActionJobView(job))
	}
}
