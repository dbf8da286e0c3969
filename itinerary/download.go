package itinerary

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/julienschmidt/httprouter"

	"tourdoc/apperr"
	"tourdoc/jobs"
	"tourdoc/logging"
	"tourdoc/pipeline"
	"tourdoc/store"
	"tourdoc/utils"
)

const documentRoute = "/document/"

type downloadRequest struct {
	ItineraryID string `json:"itineraryId" validate:"required"`
}

// jobView is a job status plus the links to its documents.
type jobView struct {
	jobs.Status
	PDFURL  string `json:"pdfUrl,omitempty"`
	DocxURL string `json:"docxUrl,omitempty"`
}

func viewOf(st jobs.Status) jobView {
	v := jobView{Status: st}
	if st.PDF != "" {
		v.PDFURL = documentRoute + st.PDF
	}
	if st.Docx != "" {
		v.DocxURL = documentRoute + st.Docx
	}
	return v
}

// POST /api/download
//
// Queues the document pipeline and waits for it up to DownloadWait. A job that
// is still running by then is answered with 202 and its ID; the client follows
// it on /api/jobs/:id or /ws/jobs/:id.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req downloadRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}

	// Only the owner may render an itinerary.
	if _, err := h.Store.GetItinerary(r.Context(), store.Key{UserID: userID, ItineraryID: req.ItineraryID}); err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}

	job, err := h.Jobs.Submit(r.Context(), req.ItineraryID, userID)
	if err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.DownloadWait)
	defer cancel()

	res, err := job.Wait(ctx)
	if err != nil {
		select {
		case <-job.Done():
			res, err = job.Wait(context.Background())
		default:
		}
	}

	switch {
	case err == nil:
		utils.RespondWithJSON(w, http.StatusOK, links(job.JobID, res))
	case !isDone(job):
		if r.Context().Err() != nil {
			logging.Ctx(r.Context()).Info().Str("job_id", job.JobID).Msg("client left before the document was ready")
			return
		}
		utils.RespondWithJSON(w, http.StatusAccepted, utils.M{
			"jobId":  job.JobID,
			"status": "/api/jobs/" + job.JobID,
		})
	default:
		utils.RespondWithAppError(w, r, err)
	}
}

func isDone(job *jobs.Handle) bool {
	select {
	case <-job.Done():
		return true
	default:
		return false
	}
}

func links(jobID string, res pipeline.Result) utils.M {
	return utils.M{
		"jobId": jobID,
		"pdf":   documentRoute + filepath.Base(res.PDFPath),
		"docx":  documentRoute + filepath.Base(res.DocxPath),
	}
}

// lookupJob returns the caller's job. Jobs of other users are reported as
// missing.
func (h *Handlers) lookupJob(r *http.Request, userID, jobID string) (jobs.Status, error) {
	st, err := h.Jobs.Status(r.Context(), jobID)
	if err != nil {
		return jobs.Status{}, err
	}
	if st.UserID != userID {
		return jobs.Status{}, apperr.NotFound("itinerary.Job", "job %q not found", jobID)
	}
	return st, nil
}

// GET /api/jobs/:id
func (h *Handlers) Job(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	st, err := h.lookupJob(r, userID, ps.ByName("id"))
	if err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, viewOf(st))
}
