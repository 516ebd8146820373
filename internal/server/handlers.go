package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	log "log/slog"
	"net/http"
	"os"
	"strconv"

	"furnivox/internal/assets"
	"furnivox/internal/command"
	"furnivox/internal/metrics"
	"furnivox/internal/nlu"
	"furnivox/pkg/audioconv"
)

const (
	maxCommandBytes = 64 << 10

	noSpeechReply = "I didn't hear a command. Please try again."
)

type commandRequest struct {
	Command *string `json:"command"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("Failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "furnivox server is running",
	})
}

func (s *Server) handleProcessCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBytes)).Decode(&req); err != nil || req.Command == nil {
		writeError(w, http.StatusBadRequest, "No command provided")
		return
	}

	log.Info("Received command", "command", *req.Command)

	status, body := s.process(r, *req.Command)
	writeJSON(w, status, body)
}

// process runs text through the command processor and maps failures to
// an HTTP status and an {error} body.
func (s *Server) process(r *http.Request, text string) (int, any) {
	action, err := s.opts.Commands.Process(r.Context(), text)
	if err != nil {
		return s.processError(text, err)
	}

	log.Info("Returning action", "action", action.Name(), "fields", len(action))
	return http.StatusOK, action
}

func (s *Server) processError(text string, err error) (int, map[string]string) {
	if errors.Is(err, nlu.ErrEmptyCommand) {
		return http.StatusBadRequest, map[string]string{"error": "No command provided"}
	}
	log.Error("Failed to process command", "command", text, "err", err)
	return http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("LLM Error: %v", err)}
}

func (s *Server) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	if s.opts.Transcriber == nil {
		writeError(w, http.StatusServiceUnavailable, nlu.ErrNoTranscriber.Error())
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.opts.MaxAudioBytes)
	pcm, err := audioconv.Decode(body, audioName(r), audioconv.Options{MaxSamples: s.opts.MaxAudioSamples})
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "Audio too large")
			return
		}
		if errors.Is(err, audioconv.ErrTooLong) {
			writeError(w, http.StatusRequestEntityTooLarge, "Audio too long")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid audio: %v", err))
		return
	}

	log.Info("Received audio", "samples", len(pcm))

	text, err := s.opts.Transcriber.Transcribe(r.Context(), pcm)
	if err != nil {
		log.Error("Failed to transcribe", "err", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Transcription Error: %v", err))
		return
	}

	log.Info("Transcribed", "text", text)

	if text == "" {
		action := command.Query(noSpeechReply)
		action["transcript"] = ""
		writeJSON(w, http.StatusOK, action)
		return
	}

	status, resp := s.process(r, text)
	if action, ok := resp.(command.Action); ok {
		action["transcript"] = text
	}
	writeJSON(w, status, resp)
}

func audioName(r *http.Request) string {
	if name := r.URL.Query().Get("filename"); name != "" {
		return name
	}
	switch r.Header.Get("Content-Type") {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "upload.wav"
	case "audio/mpeg", "audio/mp3":
		return "upload.mp3"
	case "audio/ogg", "audio/opus":
		return "upload.ogg"
	}
	return "upload"
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	category, filename := r.PathValue("category"), r.PathValue("filename")

	f, err := s.opts.Assets.Open(category, filename)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			log.Warn("Model not found", "category", category, "file", filename)
			writeStatus(w, http.StatusNotFound, fmt.Sprintf("File not found: %s/%s", category, filename))
			return
		}
		writeStatus(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	log.Info("Serving model", "category", category, "file", filename, "bytes", f.Size)
	stream(w, f)
}

func (s *Server) handleGLB(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f, err := s.opts.Assets.OpenGLB(id)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			log.Warn("GLB not found", "id", id)
			writeStatus(w, http.StatusNotFound, fmt.Sprintf("GLB file not found: %s", id))
			return
		}
		writeStatus(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	log.Info("Serving glb", "id", id, "bytes", f.Size)
	stream(w, f)
}

func stream(w http.ResponseWriter, f *assets.File) {
	w.Header().Set("Content-Type", assets.MediaType)
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, f)
	metrics.AssetBytesServed.Add(float64(n))
	if err != nil {
		log.Warn("Model stream interrupted", "file", f.Name, "sent", n, "err", err)
	}
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")

	names, err := s.opts.Assets.List(category)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			writeStatus(w, http.StatusNotFound, fmt.Sprintf("Category not found: %s", category))
			return
		}
		writeStatus(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"category": category,
		"count":    len(names),
		"models":   names,
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	cats, err := s.opts.Assets.Categories()
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			writeStatus(w, http.StatusNotFound, "Models directory not found")
			return
		}
		writeStatus(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"count":      len(cats),
		"categories": cats,
	})
}

func (s *Server) handleInventoryCSV(w http.ResponseWriter, _ *http.Request) {
	f, err := os.Open(s.opts.InventoryCSV)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "Inventory CSV not found")
			return
		}
		writeStatus(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/csv")
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		log.Warn("Inventory stream interrupted", "err", err)
	}
}

func (s *Server) handleInventory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"count":      s.opts.Index.Len(),
		"categories": s.opts.Index.Snapshot(),
	})
}
