package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CharanSaiVaddi/purrctl/internal/catalog"
	"github.com/CharanSaiVaddi/purrctl/internal/storage"
)

func (s *Server) handleGetRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.store.ListRepos()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

func (s *Server) handlePostRepo(w http.ResponseWriter, r *http.Request) {
	var doc catalog.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil || doc == nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	item, err := s.store.SaveRepo(doc)
	if errors.Is(err, storage.ErrNoFSPath) {
		writeError(w, http.StatusBadRequest, "fs_path attribute is required")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("repo create failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.WithField("fs_path", item["fs_path"]).Info("repo saved")
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":       fmt.Sprintf("Successfully created a repo: %s", item["fs_path"]),
		"resource_type": "repo",
		"count":         1,
		"item":          item,
	})
}

func (s *Server) handlePostRasters(w http.ResponseWriter, r *http.Request) {
	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	list, ok := body.([]any)
	if !ok {
		writeError(w, http.StatusBadRequest, "Request body must be an array")
		return
	}
	docs := make([]catalog.Document, 0, len(list))
	for _, v := range list {
		m, ok := v.(map[string]any)
		if !ok {
			writeError(w, http.StatusBadRequest, "Request body must be an array of objects")
			return
		}
		docs = append(docs, catalog.Document(m))
	}
	items, err := s.store.SaveRasters(docs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.WithField("count", len(items)).Info("rasters saved")
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":       fmt.Sprintf("Successfully created %d raster(s)", len(items)),
		"resource_type": "raster",
		"count":         len(items),
		"items":         items,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req catalog.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	res, err := catalog.Search(s.store, req, time.Now())
	if errors.Is(err, catalog.ErrBadToken) {
		writeError(w, http.StatusBadRequest, "Invalid pagination token")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("search failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.WithFields(logrus.Fields{
		"uwis":     len(req.UWIs),
		"returned": res.Metadata.ReturnedCount,
		"more":     res.Metadata.PaginationToken != nil,
	}).Debug("search")
	writeJSON(w, http.StatusOK, res)
}
