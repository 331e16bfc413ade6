// Package service exposes the bot's HTTP surface: build detail pages that
// commit statuses link to, srpm logs, the webhook receiver, and the internal
// update-status endpoint used by the follow-up worker.
package service

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"pkgforge/bot/allowlist"
	"pkgforge/bot/auth"
	"pkgforge/bot/build"
	"pkgforge/bot/forge"
	"pkgforge/bot/queue"
	"pkgforge/bot/schema"
	"pkgforge/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

type Service struct {
	db  *gorm.DB
	cfg build.ServiceConfig

	allowlist *allowlist.Repository
	forgeFor  forge.Factory
	queue     queue.Queue

	workerAuth    *auth.JwtManager
	webhookSecret []byte
}

func New(db *gorm.DB, cfg build.ServiceConfig, forgeFor forge.Factory, q queue.Queue, secret, webhookSecret []byte) *Service {
	return &Service{
		db:            db,
		cfg:           cfg,
		allowlist:     allowlist.NewRepository(db),
		forgeFor:      forgeFor,
		queue:         q,
		workerAuth:    auth.NewJwtManager(secret),
		webhookSecret: webhookSecret,
	}
}

func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Get("/builds/{build_id}", s.GetBuild)
	r.Get("/srpm-builds/{srpm_build_id}/logs", s.GetSrpmLogs)

	r.Post("/webhook", s.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(s.workerAuth.Verifier())
		r.Use(s.workerAuth.Authenticator())

		r.Post("/builds/{build_id}/update-status", s.UpdateBuildStatus)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}

type buildResponse struct {
	Id          uuid.UUID `json:"id"`
	BuildId     string    `json:"build_id"`
	Target      string    `json:"target"`
	CommitSha   string    `json:"commit_sha"`
	ProjectName string    `json:"project_name"`
	Owner       string    `json:"owner"`
	WebUrl      string    `json:"web_url"`
	Status      string    `json:"status"`

	SrpmSuccess bool   `json:"srpm_success"`
	SrpmLogsUrl string `json:"srpm_logs_url"`
}

func (s *Service) GetBuild(w http.ResponseWriter, r *http.Request) {
	buildId, err := utils.URLParamUUID(r, "build_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	coprBuild, err := s.lookupBuild(buildId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	res := buildResponse{
		Id:          coprBuild.Id,
		BuildId:     coprBuild.BuildId,
		Target:      coprBuild.Target,
		CommitSha:   coprBuild.CommitSha,
		ProjectName: coprBuild.ProjectName,
		Owner:       coprBuild.Owner,
		WebUrl:      coprBuild.WebUrl,
		Status:      coprBuild.Status,
		SrpmLogsUrl: s.cfg.SrpmLogsURL(coprBuild.SrpmBuildId),
	}
	if coprBuild.SrpmBuild != nil {
		res.SrpmSuccess = coprBuild.SrpmBuild.Success
	}

	utils.WriteJsonResponse(w, res)
}

func (s *Service) GetSrpmLogs(w http.ResponseWriter, r *http.Request) {
	srpmBuildId, err := utils.URLParamUUID(r, "srpm_build_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	srpmBuild, err := s.lookupSrpmBuild(srpmBuildId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, srpmBuild.Logs)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

var validBuildStatuses = map[string]bool{
	schema.BuildPending:   true,
	schema.BuildRunning:   true,
	schema.BuildSucceeded: true,
	schema.BuildFailed:    true,
	schema.BuildCanceled:  true,
}

// UpdateBuildStatus is called by the babysit worker as the remote build
// progresses.
func (s *Service) UpdateBuildStatus(w http.ResponseWriter, r *http.Request) {
	buildId, err := utils.URLParamUUID(r, "build_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	workerId, err := auth.WorkerIdFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var req updateStatusRequest
	if !utils.ParseRequestBody(w, r, &req) {
		return
	}

	if err := s.applyBuildStatus(buildId, req.Status); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	slog.Info("build status updated", "build_id", buildId, "status", req.Status, "worker_id", workerId)
	utils.WriteSuccess(w)
}

func (s *Service) lookupBuild(buildId uuid.UUID) (schema.CoprBuild, error) {
	coprBuild, err := schema.GetCoprBuild(buildId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrBuildNotFound) {
			return schema.CoprBuild{}, CodedError(err, http.StatusNotFound)
		}
		return schema.CoprBuild{}, CodedError(fmt.Errorf("error retrieving build info: %w", err), http.StatusInternalServerError)
	}
	return coprBuild, nil
}

func (s *Service) lookupSrpmBuild(srpmBuildId uuid.UUID) (schema.SrpmBuild, error) {
	srpmBuild, err := schema.GetSrpmBuild(srpmBuildId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrSrpmBuildNotFound) {
			return schema.SrpmBuild{}, CodedError(err, http.StatusNotFound)
		}
		return schema.SrpmBuild{}, CodedError(fmt.Errorf("error retrieving srpm build info: %w", err), http.StatusInternalServerError)
	}
	return srpmBuild, nil
}

func (s *Service) applyBuildStatus(buildId uuid.UUID, status string) error {
	if !validBuildStatuses[status] {
		return CodedError(fmt.Errorf("invalid build status %q", status), http.StatusUnprocessableEntity)
	}

	result := s.db.Model(&schema.CoprBuild{}).Where("id = ?", buildId).Update("status", status)
	if result.Error != nil {
		slog.Error("sql error updating build status", "build_id", buildId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if result.RowsAffected == 0 {
		return CodedError(schema.ErrBuildNotFound, http.StatusNotFound)
	}

	return nil
}

// WorkerToken issues a token for the follow-up worker; used at deploy time,
// not exposed over HTTP.
func (s *Service) WorkerToken(workerId uuid.UUID, exp time.Duration) (string, error) {
	return s.workerAuth.CreateWorkerJwt(workerId, exp)
}
