package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appanalyses "github.com/bryanwahyu/contractgate/internal/application/analyses"
	domai "github.com/bryanwahyu/contractgate/internal/domain/ai"
	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
	"github.com/bryanwahyu/contractgate/internal/middleware"
)

// AnalysisService is the lifecycle the router exposes.
type AnalysisService interface {
	Submit(ctx context.Context, up domain.Upload) (appanalyses.SubmitResult, error)
	BeginCheckout(ctx context.Context, token domain.Token) (appanalyses.CheckoutResult, error)
	CheckRelease(ctx context.Context, token domain.Token) (appanalyses.ReleaseResult, error)
	Fetch(ctx context.Context, token domain.Token) (*domain.Analysis, error)
	SummarizeClauses(ctx context.Context, clauses string) (domain.ClauseSummary, error)
	Ping(ctx context.Context) error
}

type Options struct {
	UploadMaxBytes    int64
	UploadDir         string
	APIKeys           []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// TrustProxy honours X-Forwarded-For / X-Real-IP. Only enable behind a
	// proxy that overwrites them.
	TrustProxy bool
	// Health checks in addition to the record store.
	Health map[string]middleware.HealthChecker
}

type Router struct {
	svc    AnalysisService
	logger *zap.Logger
	opts   Options
}

const (
	defaultUploadMaxBytes = 10 << 20
	multipartMemory       = 1 << 20
	// multipartEnvelope covers boundaries, part headers and the ownerId field.
	multipartEnvelope = 1 << 20
)

var errUploadTooLarge = errors.New("upload too large")

func NewRouter(svc AnalysisService, logger *zap.Logger, opts Options) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.UploadMaxBytes <= 0 {
		opts.UploadMaxBytes = defaultUploadMaxBytes
	}
	if opts.UploadDir == "" {
		opts.UploadDir = os.TempDir()
	}
	r := &Router{svc: svc, logger: logger, opts: opts}

	checks := map[string]middleware.HealthChecker{"store": svc}
	for name, c := range opts.Health {
		checks[name] = c
	}

	mux := chi.NewRouter()
	if opts.TrustProxy {
		mux.Use(chimw.RealIP)
	}
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Logging(logger))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))
	if len(opts.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	}

	mux.Get("/health", middleware.HealthHandler(logger, checks))
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/analyses", func(rt chi.Router) {
		rt.With(middleware.RateLimit(opts.RateLimitRequests, opts.RateLimitWindow)).
			Post("/", r.wrap(r.handleSubmit))
		rt.Post("/{token}/summary", r.wrap(r.handleSummary))
		rt.Post("/{token}/checkout", r.wrap(r.handleCheckout))
		rt.Get("/{token}/release-status", r.wrap(r.handleReleaseStatus))
		rt.Get("/{token}", r.wrap(r.handleFetch))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Raw   string `json:"raw,omitempty"`
}

// wrap maps service errors to status codes. Dependency details are logged,
// callers only see a generic message.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status, body := r.classify(err)
		if status >= 500 {
			r.logger.Error("http.handler_error",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", status),
				zap.Error(err),
			)
		}
		writeJSON(w, status, body)
	}
}

func (r *Router) classify(err error) (int, errorBody) {
	var pe *domain.ParseError
	switch {
	case errors.Is(err, errUploadTooLarge):
		return http.StatusBadRequest, errorBody{Error: "file exceeds the upload limit", Code: "upload_too_large"}
	case errors.Is(err, domain.ErrMissingFile):
		return http.StatusBadRequest, errorBody{Error: "file is required", Code: "missing_file"}
	case errors.Is(err, domain.ErrUnsupportedMediaType):
		return http.StatusBadRequest, errorBody{Error: "only PDF and image files are supported", Code: "unsupported_media_type"}
	case errors.Is(err, domain.ErrMissingClauses):
		return http.StatusBadRequest, errorBody{Error: "clauses are required", Code: "missing_clauses"}
	case errors.Is(err, domain.ErrInvalidToken):
		return http.StatusBadRequest, errorBody{Error: "invalid token", Code: "invalid_token"}
	case errors.Is(err, domain.ErrInvalidOwner):
		return http.StatusBadRequest, errorBody{Error: "invalid ownerId", Code: "invalid_owner"}
	case errors.Is(err, domain.ErrCheckoutNotStarted):
		return http.StatusBadRequest, errorBody{Error: "checkout not started for this token", Code: "checkout_not_started"}
	case errors.Is(err, domain.ErrTokenNotFound):
		return http.StatusNotFound, errorBody{Error: "analysis not found", Code: "not_found"}
	case errors.Is(err, domain.ErrPaymentRequired):
		return http.StatusForbidden, errorBody{Error: "payment required", Code: "payment_required"}
	case errors.Is(err, domain.ErrAlreadyReleased):
		return http.StatusConflict, errorBody{Error: "analysis already released", Code: "already_released"}
	case errors.As(err, &pe):
		return http.StatusInternalServerError, errorBody{Error: "could not parse the clause classification", Code: "parse_error", Raw: pe.Raw}
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests, errorBody{Error: "ai quota exceeded", Code: "quota_exceeded"}
	case errors.Is(err, domain.ErrDependencyTimeout):
		return http.StatusGatewayTimeout, errorBody{Error: "a dependency timed out", Code: "dependency_timeout"}
	case errors.Is(err, domain.ErrExtractionFailed):
		return http.StatusInternalServerError, errorBody{Error: "could not extract text from the file", Code: "extraction_failed"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal error", Code: "dependency_failure"}
	}
}

// POST /analyses
// multipart: file, ownerId
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, r.opts.UploadMaxBytes+multipartEnvelope)
	if err := req.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			return errUploadTooLarge
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return domain.ErrMissingFile
		}
		return err
	}
	defer req.MultipartForm.RemoveAll()

	file, header, err := req.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return domain.ErrMissingFile
		}
		return err
	}
	defer file.Close()
	if header.Size > r.opts.UploadMaxBytes {
		return errUploadTooLarge
	}

	owner := middleware.SanitizeString(req.FormValue("ownerId"))
	if err := middleware.ValidateOwnerID(owner); err != nil {
		return errors.Join(domain.ErrInvalidOwner, err)
	}

	mediaType := header.Header.Get("Content-Type")
	if !domain.SupportedMediaType(mediaType) {
		return domain.ErrUnsupportedMediaType
	}

	path, err := r.spool(file, header.Filename)
	if err != nil {
		return err
	}

	res, err := r.svc.Submit(req.Context(), domain.Upload{
		Path:      path,
		Filename:  header.Filename,
		MediaType: mediaType,
		OwnerID:   owner,
	})
	if err != nil {
		return err
	}
	middleware.IncrementAnalyses(res.Degraded)
	writeJSON(w, http.StatusOK, res)
	return nil
}

// spool copies the upload to UploadDir. The service removes it afterwards.
func (r *Router) spool(src io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 10 {
		ext = ""
	}
	dst, err := os.CreateTemp(r.opts.UploadDir, "upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// POST /analyses/{token}/summary
// Body: {"clauses": "..."}
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	if _, err := tokenParam(req); err != nil {
		return err
	}
	var body struct {
		Clauses string `json:"clauses"`
	}
	if err := json.NewDecoder(io.LimitReader(req.Body, r.opts.UploadMaxBytes)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return domain.ErrMissingClauses
	}
	sum, err := r.svc.SummarizeClauses(req.Context(), body.Clauses)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sum)
	return nil
}

// POST /analyses/{token}/checkout
func (r *Router) handleCheckout(w http.ResponseWriter, req *http.Request) error {
	token, err := tokenParam(req)
	if err != nil {
		return err
	}
	res, err := r.svc.BeginCheckout(req.Context(), token)
	if err != nil {
		return err
	}
	middleware.IncrementCheckouts()
	writeJSON(w, http.StatusOK, res)
	return nil
}

// GET /analyses/{token}/release-status
func (r *Router) handleReleaseStatus(w http.ResponseWriter, req *http.Request) error {
	token, err := tokenParam(req)
	if err != nil {
		return err
	}
	res, err := r.svc.CheckRelease(req.Context(), token)
	if err != nil {
		return err
	}
	if res.Released {
		middleware.IncrementReleases()
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

type recordView struct {
	Token              string     `json:"token"`
	OwnerID            string     `json:"ownerId"`
	CreatedAt          time.Time  `json:"createdAt"`
	ClauseAnalysis     string     `json:"clauseAnalysis"`
	Recommendation     string     `json:"recommendation,omitempty"`
	Extraction         string     `json:"extraction"`
	Paid               bool       `json:"paid"`
	CheckoutSessionID  string     `json:"checkoutSessionId,omitempty"`
	PaymentConfirmedAt *time.Time `json:"paymentConfirmedAt,omitempty"`
}

// GET /analyses/{token}
func (r *Router) handleFetch(w http.ResponseWriter, req *http.Request) error {
	token, err := tokenParam(req)
	if err != nil {
		return err
	}
	a, err := r.svc.Fetch(req.Context(), token)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, recordView{
		Token:              string(a.Token),
		OwnerID:            a.OwnerID,
		CreatedAt:          a.CreatedAt,
		ClauseAnalysis:     a.ClauseAnalysis,
		Recommendation:     a.Recommendation,
		Extraction:         string(a.Extraction),
		Paid:               a.Paid,
		CheckoutSessionID:  a.CheckoutSessionID,
		PaymentConfirmedAt: a.PaymentConfirmedAt,
	})
	return nil
}

func tokenParam(req *http.Request) (domain.Token, error) {
	t := chi.URLParam(req, "token")
	if err := middleware.ValidateToken(t); err != nil {
		return "", errors.Join(domain.ErrInvalidToken, err)
	}
	return domain.Token(t), nil
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
