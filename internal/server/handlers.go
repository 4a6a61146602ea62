package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/spec-search/internal/model"
)

const (
	msgInvalidJSON   = "Invalid JSON data"
	msgNoFile        = "No PDF file provided"
	msgNoFileName    = "No PDF file selected"
	msgNotPDF        = "File must be a PDF"
	msgFileTooLarge  = "File too large"
	msgNoExtractor   = "Document extraction is not configured"
	pdfFormField     = "pdf_file"
	multipartMemory  = 32 << 20
	defaultMediaType = "application/pdf"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.NewError(msg))
}

// writeResponse maps a core response onto a status: results are 200, a
// core error is 502 since it means the upstreams gave nothing usable.
func writeResponse(w http.ResponseWriter, resp *model.SearchResponse) {
	status := http.StatusOK
	if resp.Failed() {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	port := "not_set"
	if s.cfg.Port > 0 {
		port = strconv.Itoa(s.cfg.Port)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "port": port})
}

func (s *Server) handleGetSpecs(w http.ResponseWriter, r *http.Request) {
	log := logger(r)

	var req model.SpecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("server: invalid JSON body", zap.Error(err))
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if err := req.Validate(); err != nil {
		log.Warn("server: invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Info("server: searching",
		zap.String("supplier", req.Supplier),
		zap.Strings("part_numbers", req.PartNumbers),
		zap.Int("specifications", len(req.Specifications)),
	)
	writeResponse(w, s.search.Search(r.Context(), req))
}

func (s *Server) handleProcessPDF(w http.ResponseWriter, r *http.Request) {
	log := logger(r)
	if s.extract == nil {
		writeError(w, http.StatusServiceUnavailable, msgNoExtractor)
		return
	}

	if r.ContentLength > s.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, msgFileTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgFileTooLarge)
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			log.Warn("server: bad multipart body", zap.Error(err))
		}
		writeError(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile(pdfFormField)
	if err != nil {
		// A part sent with an empty filename is parsed as a plain value.
		if _, ok := r.MultipartForm.Value[pdfFormField]; ok {
			writeError(w, http.StatusBadRequest, msgNoFileName)
			return
		}
		writeError(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer file.Close() //nolint:errcheck

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, msgNoFileName)
		return
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		log.Warn("server: rejected upload", zap.String("filename", header.Filename))
		writeError(w, http.StatusBadRequest, msgNotPDF)
		return
	}

	req, ok := documentRequest(r.MultipartForm)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		log.Error("server: read upload", zap.Error(err))
		writeError(w, http.StatusBadRequest, msgNoFile)
		return
	}
	req.Document = model.Document{
		Filename:  header.Filename,
		MediaType: defaultMediaType,
		Data:      data,
	}

	log.Info("server: processing document",
		zap.String("supplier", req.Supplier),
		zap.String("filename", header.Filename),
		zap.Int("bytes", len(data)),
		zap.Strings("part_numbers", req.PartNumbers),
	)
	writeResponse(w, s.extract.Extract(r.Context(), req))
}

// documentRequest reads supplier plus the JSON-encoded part_numbers and
// specifications form values. Absent lists decode as empty.
func documentRequest(form *multipart.Form) (model.DocumentRequest, bool) {
	var req model.DocumentRequest
	req.Supplier = strings.TrimSpace(formValue(form, "supplier"))
	for field, dst := range map[string]*[]string{
		"part_numbers":   &req.PartNumbers,
		"specifications": &req.Specifications,
	} {
		raw := formValue(form, field)
		if raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return req, false
		}
	}
	return req, true
}

func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}
