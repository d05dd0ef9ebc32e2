package server

import (
	"fmt"
	"image"
	"net/http"
	"strconv"

	"github.com/sebnyberg/pixelpruner"
	"github.com/sebnyberg/pixelpruner/engine"
	"github.com/sebnyberg/pixelpruner/export"
	"github.com/sebnyberg/pixelpruner/log"
	"github.com/sebnyberg/pixelpruner/store"
)

type sessionResponse struct {
	ID string `json:"id"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.add(s.newSession)
	s.log.Info("session created", log.String("session", sess.id))
	s.writeJSON(w, http.StatusCreated, sessionResponse{ID: sess.id})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.remove(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	sess.mu.Lock()
	s.renders.forget(sess.store.All())
	sess.store.Reset()
	sess.mu.Unlock()
	s.log.Info("session deleted", log.String("session", sess.id))
	w.WriteHeader(http.StatusNoContent)
}

type imageInfo struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func infoOf(index int, img *store.SourceImage) imageInfo {
	return imageInfo{
		Index:  index,
		Name:   img.Name,
		Format: img.Format,
		Width:  img.Width(),
		Height: img.Height(),
	}
}

type imagesResponse struct {
	Images []imageInfo   `json:"images"`
	Errors []uploadError `json:"errors,omitempty"`
}

type uploadError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

func (s *Server) listImages(w http.ResponseWriter, r *http.Request, sess *session) {
	resp := imagesResponse{Images: []imageInfo{}}
	for i, img := range sess.store.All() {
		resp.Images = append(resp.Images, infoOf(i, img))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// uploadImages loads the files of the multipart field "files". Files that fail
// to decode are reported and skipped. The request fails only when nothing
// could be loaded.
func (s *Server) uploadImages(w http.ResponseWriter, r *http.Request, sess *session) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, badRequest("parse upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.writeError(w, badRequest("no files in field %q", "files"))
		return
	}
	resp := imagesResponse{Images: []imageInfo{}}
	var firstErr error
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			resp.Errors = append(resp.Errors, uploadError{Name: fh.Filename, Error: err.Error()})
			continue
		}
		img, err := sess.store.Load(fh.Filename, f)
		f.Close()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			resp.Errors = append(resp.Errors, uploadError{Name: fh.Filename, Error: err.Error()})
			continue
		}
		resp.Images = append(resp.Images, infoOf(sess.store.Len()-1, img))
	}
	if len(resp.Images) == 0 && firstErr != nil {
		s.writeJSON(w, statusOf(firstErr), resp)
		return
	}
	s.log.Info("images uploaded",
		log.String("session", sess.id),
		log.Int("loaded", len(resp.Images)),
		log.Int("failed", len(resp.Errors)),
	)
	s.writeJSON(w, http.StatusOK, resp)
}

func pathIndex(r *http.Request) (int, error) {
	v := r.PathValue("index")
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("invalid index %q", v)
	}
	return i, nil
}

func (s *Server) sessionImage(r *http.Request, sess *session) (*store.SourceImage, error) {
	i, err := pathIndex(r)
	if err != nil {
		return nil, err
	}
	return sess.store.Get(i)
}

func (s *Server) removeImage(w http.ResponseWriter, r *http.Request, sess *session) {
	i, err := pathIndex(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	img, err := sess.store.Get(i)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.store.Remove(i); err != nil {
		s.writeError(w, err)
		return
	}
	s.renders.forget([]*store.SourceImage{img})
	w.WriteHeader(http.StatusNoContent)
}

func writeJPEG(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Write(b)
}

func (s *Server) thumbnail(w http.ResponseWriter, r *http.Request, sess *session) {
	img, err := s.sessionImage(r, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out, err := s.renders.thumbnail(img)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJPEG(w, out.jpeg)
}

// display renders the image into the requested display size. The rendered
// size is returned in headers; selections drawn on the image must be sent with
// it.
func (s *Server) display(w http.ResponseWriter, r *http.Request, sess *session) {
	img, err := s.sessionImage(r, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	name := r.URL.Query().Get("size")
	if name == "" {
		name = s.opts.Display
	}
	box, err := pixelpruner.LookupDisplay(name)
	if err != nil {
		s.writeError(w, badRequest("%v", err))
		return
	}
	out, err := s.renders.display(img, box)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("X-Rendered-Width", strconv.Itoa(out.transform.RenderedWidth))
	w.Header().Set("X-Rendered-Height", strconv.Itoa(out.transform.RenderedHeight))
	writeJPEG(w, out.jpeg)
}

type region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func regionOf(r image.Rectangle) region {
	return region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

type cropResponse struct {
	Source   string           `json:"source"`
	Filename string           `json:"filename"`
	Region   region           `json:"region"`
	Size     pixelpruner.Size `json:"size"`
}

func cropResponseOf(res *engine.CropResult) cropResponse {
	return cropResponse{
		Source:   res.Source,
		Filename: res.Filename,
		Region:   regionOf(res.Region),
		Size:     res.Size,
	}
}

type cropRequest struct {
	Index     int                          `json:"index"`
	Selection pixelpruner.SelectionRect    `json:"selection"`
	Rendered  pixelpruner.DisplayTransform `json:"rendered"`
}

func (s *Server) crop(w http.ResponseWriter, r *http.Request, sess *session) {
	var req cropRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := sess.engine.Crop(req.Index, req.Selection, req.Rendered)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, cropResponseOf(res))
}

type cropAtRequest struct {
	Index    int                          `json:"index"`
	X        float64                      `json:"x"`
	Y        float64                      `json:"y"`
	Rendered pixelpruner.DisplayTransform `json:"rendered"`
	Preset   string                       `json:"preset"`
	Zoom     float64                      `json:"zoom"`
}

func (s *Server) cropAt(w http.ResponseWriter, r *http.Request, sess *session) {
	var req cropAtRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Preset == "" {
		req.Preset = s.opts.Preset
	}
	if req.Zoom == 0 {
		req.Zoom = s.opts.Zoom
	}
	if req.Zoom < pixelpruner.MinZoom || req.Zoom > pixelpruner.MaxZoom {
		s.writeError(w, fmt.Errorf("zoom %v err, %w", req.Zoom, pixelpruner.ErrInvalidPreset))
		return
	}
	preset, err := pixelpruner.LookupPreset(req.Preset)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", pixelpruner.ErrInvalidPreset, err))
		return
	}
	click := pixelpruner.Point{X: req.X, Y: req.Y}
	res, err := sess.engine.CropAt(req.Index, click, req.Rendered, preset, req.Zoom)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, cropResponseOf(res))
}

type batchRequest struct {
	// Indices selects the images to crop; null selects all of them.
	Indices   []int                     `json:"indices"`
	Selection pixelpruner.SelectionRect `json:"selection"`
	Display   string                    `json:"display"`
}

type batchOutcome struct {
	Index    int     `json:"index"`
	Source   string  `json:"source,omitempty"`
	Filename string  `json:"filename,omitempty"`
	Region   *region `json:"region,omitempty"`
	Error    string  `json:"error,omitempty"`
}

type batchResponse struct {
	Saved    int            `json:"saved"`
	Skipped  int            `json:"skipped"`
	Outcomes []batchOutcome `json:"outcomes"`
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request, sess *session) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Display == "" {
		req.Display = s.opts.Display
	}
	box, err := pixelpruner.LookupDisplay(req.Display)
	if err != nil {
		s.writeError(w, badRequest("%v", err))
		return
	}
	outcomes := sess.engine.Batch(req.Indices, req.Selection, box)
	resp := batchResponse{Outcomes: make([]batchOutcome, 0, len(outcomes))}
	resp.Saved, resp.Skipped = engine.Summary(outcomes)
	for _, o := range outcomes {
		bo := batchOutcome{Index: o.Index, Source: o.Source}
		if o.Err != nil {
			bo.Error = o.Err.Error()
		} else {
			reg := regionOf(o.Result.Region)
			bo.Filename, bo.Region = o.Result.Filename, &reg
		}
		resp.Outcomes = append(resp.Outcomes, bo)
	}
	s.log.Info("batch done",
		log.String("session", sess.id),
		log.Int("saved", resp.Saved),
		log.Int("skipped", resp.Skipped),
	)
	s.writeJSON(w, http.StatusOK, resp)
}

type outputsResponse struct {
	Outputs []export.Entry `json:"outputs"`
}

func (s *Server) listOutputs(w http.ResponseWriter, r *http.Request) {
	entries, err := export.List(s.opts.OutputDir)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []export.Entry{}
	}
	s.writeJSON(w, http.StatusOK, outputsResponse{Outputs: entries})
}

type deleteOutputsRequest struct {
	Names []string `json:"names"`
}

type deleteOutputsResponse struct {
	Deleted []string `json:"deleted"`
}

func (s *Server) deleteOutputs(w http.ResponseWriter, r *http.Request) {
	var req deleteOutputsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	deleted, err := export.Delete(s.opts.OutputDir, req.Names)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if deleted == nil {
		deleted = []string{}
	}
	s.writeJSON(w, http.StatusOK, deleteOutputsResponse{Deleted: deleted})
}

// archive streams all crops as a zip or seekable tar.zst. Errors after the
// first byte can only be logged.
func (s *Server) archive(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, badRequest("%v", err))
		return
	}
	if _, err := export.List(s.opts.OutputDir); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "crops."+string(format)))
	n, err := export.Write(w, s.opts.OutputDir, format)
	if err != nil {
		s.log.Error("write archive", log.Err(err))
		return
	}
	s.log.Info("archive sent", log.String("format", string(format)), log.Int("files", n))
}
