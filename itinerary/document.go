package itinerary

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/julienschmidt/httprouter"

	"tourdoc/utils"
)

var documentTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// GET /document/:filename
func (h *Handlers) Document(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	raw := ps.ByName("filename")
	name := utils.SanitizeFilename(raw)
	if name == "" || name != raw {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	contentType, ok := documentTypes[strings.ToLower(filepath.Ext(name))]
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "only .pdf and .docx documents can be downloaded")
		return
	}

	f, err := os.Open(filepath.Join(h.OutputDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		utils.RespondWithError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		utils.RespondWithError(w, http.StatusNotFound, "document not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, name, info.ModTime(), f)
}
