package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	xerrors "settingshub/internal/errors"
	"settingshub/internal/settings"
)

const maxBodyBytes = 1 << 20

type groupResponse struct {
	Group      string              `json:"group"`
	Properties settings.Properties `json:"properties"`
}

type saveRequest struct {
	Properties settings.Properties `json:"properties"`
}

type propertyResponse struct {
	Name  string         `json:"name"`
	Value settings.Value `json:"value"`
}

// putRequest 使用 RawMessage 区分缺失的 value 与显式的 null。
type putRequest struct {
	Value json.RawMessage `json:"value"`
}

type namesRequest struct {
	Names []string `json:"names"`
}

type locksResponse struct {
	Group  string   `json:"group"`
	Locked []string `json:"locked"`
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("group")
	props, err := s.service.Group(r.Context(), group)
	if err != nil {
		s.fail(w, r, "group.get", group, err)
		return
	}
	if props == nil {
		props = settings.Properties{}
	}
	writeJSON(w, http.StatusOK, groupResponse{Group: group, Properties: props})
}

func (s *Server) handleSaveGroup(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("group")
	var req saveRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, "group.save", group, err)
		return
	}
	result, err := s.service.Save(r.Context(), group, req.Properties)
	if err != nil {
		s.fail(w, r, "group.save", group, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	group, name := r.PathValue("group"), r.PathValue("name")
	value, ok, err := s.service.Property(r.Context(), group, name)
	if err != nil {
		s.fail(w, r, "property.get", group, err)
		return
	}
	if !ok {
		s.fail(w, r, "property.get", group, xerrors.New(xerrors.CodeNotFound, "属性不存在",
			xerrors.WithMetadata("group", group), xerrors.WithMetadata("name", name)))
		return
	}
	writeJSON(w, http.StatusOK, propertyResponse{Name: name, Value: value})
}

func (s *Server) handlePutProperty(w http.ResponseWriter, r *http.Request) {
	group, name := r.PathValue("group"), r.PathValue("name")
	var req putRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, "property.put", group, err)
		return
	}
	if len(req.Value) == 0 {
		s.fail(w, r, "property.put", group, xerrors.New(xerrors.CodeInvalidArgument, "请求体缺少 value 字段"))
		return
	}
	value, err := settings.Decode(req.Value)
	if err != nil {
		s.fail(w, r, "property.put", group, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "value 不是合法的 JSON"))
		return
	}
	if err := s.service.Create(r.Context(), group, name, value); err != nil {
		s.fail(w, r, "property.put", group, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteProperty(w http.ResponseWriter, r *http.Request) {
	group, name := r.PathValue("group"), r.PathValue("name")
	if err := s.service.Delete(r.Context(), group, name); err != nil {
		s.fail(w, r, "property.delete", group, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetLocks(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("group")
	locked, err := s.service.Locked(r.Context(), group)
	if err != nil {
		s.fail(w, r, "locks.get", group, err)
		return
	}
	if locked == nil {
		locked = []string{}
	}
	writeJSON(w, http.StatusOK, locksResponse{Group: group, Locked: locked})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	s.handleLockChange(w, r, "locks.lock", s.service.Lock)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	s.handleLockChange(w, r, "locks.unlock", s.service.Unlock)
}

func (s *Server) handleLockChange(w http.ResponseWriter, r *http.Request, operation string,
	apply func(ctx context.Context, group string, names []string) error) {
	group := r.PathValue("group")
	var req namesRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, operation, group, err)
		return
	}
	if err := apply(r.Context(), group, req.Names); err != nil {
		s.fail(w, r, operation, group, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(r *http.Request, target any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "读取请求体失败")
	}
	if len(body) > maxBodyBytes {
		return xerrors.New(xerrors.CodeInvalidArgument, "请求体过大")
	}
	if len(body) == 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "请求体为空")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	return nil
}
