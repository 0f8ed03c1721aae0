package handler

import "net/http"

type uploadHandler struct {
	uploads Uploader
}

type photoURLRequest struct {
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

type photoURLResponse struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

func (h *uploadHandler) PhotoURL(w http.ResponseWriter, r *http.Request) {
	req := photoURLRequest{}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	url, key, err := h.uploads.PhotoURL(r.Context(), req.FileName, req.FileType)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, photoURLResponse{URL: url, Key: key})
}
