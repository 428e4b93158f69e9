package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"starter/internal/auth"
	"starter/internal/models"
	"starter/internal/repo"
	"starter/internal/service"
)

// Service: то, что контроллер ожидает от сервиса сущности (см. service.CRUD).
type Service[D models.DTO] interface {
	GetAll(ctx context.Context, q repo.Query) ([]D, error)
	GetPaged(ctx context.Context, req repo.PageRequest, q repo.Query) (*repo.Paged[D], error)
	GetByID(ctx context.Context, id uint) (D, error)
	Create(ctx context.Context, actor service.Actor, dto D) (D, error)
	Update(ctx context.Context, actor service.Actor, id uint, dto D) (D, error)
	Delete(ctx context.Context, actor service.Actor, id uint) (bool, error)
	ExportCSV(ctx context.Context, q repo.Query, searchTerm string) ([]byte, error)
	ExportXLSX(ctx context.Context, q repo.Query, searchTerm string) ([]byte, error)
}

// Controller: стандартные маршруты сущности. Каждый маршрут закрыт правом
// <Resource>_<Action>.
type Controller[D models.DTO] struct {
	responder
	svc      Service[D]
	resource string
	entity   string
	readOnly bool
	now      func() time.Time
}

type ControllerOption func(*controllerOpts)

type controllerOpts struct{ readOnly bool }

// ReadOnly оставляет только чтение и выгрузку.
func ReadOnly() ControllerOption { return func(o *controllerOpts) { o.readOnly = true } }

func NewController[D models.DTO](svc Service[D], resource, entity string, rs responder, opts ...ControllerOption) *Controller[D] {
	var o controllerOpts
	for _, fn := range opts {
		fn(&o)
	}
	return &Controller[D]{
		responder: rs,
		svc:       svc,
		resource:  resource,
		entity:    entity,
		readOnly:  o.readOnly,
		now:       time.Now,
	}
}

// Register вешает маршруты на подроутер сущности (например /api/users).
func (c *Controller[D]) Register(r *mux.Router) {
	c.handle(r, "", http.MethodGet, auth.ActRead, c.getAll)
	c.handle(r, "/paged", http.MethodGet, auth.ActRead, c.getPaged)
	c.handle(r, "/export/csv", http.MethodGet, auth.ActExport, c.exportCSV)
	c.handle(r, "/export/xlsx", http.MethodGet, auth.ActExport, c.exportXLSX)
	c.handle(r, "/{id:[0-9]+}", http.MethodGet, auth.ActRead, c.getByID)
	if c.readOnly {
		return
	}
	c.handle(r, "", http.MethodPost, auth.ActCreate, c.create)
	c.handle(r, "/{id:[0-9]+}", http.MethodPut, auth.ActUpdate, c.update)
	c.handle(r, "/{id:[0-9]+}", http.MethodDelete, auth.ActDelete, c.delete)
}

func (c *Controller[D]) handle(r *mux.Router, path, method, action string, h http.HandlerFunc) {
	r.Handle(path, auth.Require(auth.Perm(c.resource, action))(h)).Methods(method)
}

func (c *Controller[D]) getAll(w http.ResponseWriter, r *http.Request) {
	items, err := c.svc.GetAll(r.Context(), repo.Query{})
	if err != nil {
		c.fail(w, r, err)
		return
	}
	c.json(w, http.StatusOK, items)
}

func (c *Controller[D]) getPaged(w http.ResponseWriter, r *http.Request) {
	page, err := c.svc.GetPaged(r.Context(), pageRequest(r), repo.Query{})
	if err != nil {
		c.fail(w, r, err)
		return
	}
	c.json(w, http.StatusOK, page)
}

func (c *Controller[D]) getByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		c.fail(w, r, err)
		return
	}
	dto, err := c.svc.GetByID(r.Context(), id)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	c.json(w, http.StatusOK, dto)
}

func (c *Controller[D]) create(w http.ResponseWriter, r *http.Request) {
	var in D
	if err := decode(r, &in); err != nil {
		c.fail(w, r, err)
		return
	}
	out, err := c.svc.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("%s/%d", strings.TrimSuffix(r.URL.Path, "/"), out.GetID()))
	c.json(w, http.StatusCreated, out)
}

func (c *Controller[D]) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		c.fail(w, r, err)
		return
	}
	var in D
	if err := decode(r, &in); err != nil {
		c.fail(w, r, err)
		return
	}
	if in.GetID() != id {
		c.fail(w, r, fmt.Errorf("%w: id in path (%d) does not match id in body (%d)", service.ErrValidation, id, in.GetID()))
		return
	}
	out, err := c.svc.Update(r.Context(), actorFrom(r), id, in)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	c.json(w, http.StatusOK, out)
}

func (c *Controller[D]) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		c.fail(w, r, err)
		return
	}
	ok, err := c.svc.Delete(r.Context(), actorFrom(r), id)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	c.json(w, http.StatusOK, ok)
}

func (c *Controller[D]) exportCSV(w http.ResponseWriter, r *http.Request) {
	data, err := c.svc.ExportCSV(r.Context(), repo.Query{}, r.URL.Query().Get("searchTerm"))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	c.download(w, "text/csv; charset=utf-8", "csv", data)
}

func (c *Controller[D]) exportXLSX(w http.ResponseWriter, r *http.Request) {
	data, err := c.svc.ExportXLSX(r.Context(), repo.Query{}, r.URL.Query().Get("searchTerm"))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	c.download(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx", data)
}

// download отдаёт файл <entity>_export_<yyyyMMddHHmmss>.<ext>.
func (c *Controller[D]) download(w http.ResponseWriter, contentType, ext string, data []byte) {
	name := fmt.Sprintf("%s_export_%s.%s", strings.ToLower(c.entity), c.now().Format("20060102150405"), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
