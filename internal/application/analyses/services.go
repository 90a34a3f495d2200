package analyses

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/contractgate/internal/application"
	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
)

// DefaultRecommendation is stored with every analysis.
const DefaultRecommendation = "Considere consultar um advogado para revisar o contrato."

// Pricing of the single "contract analysis" product.
type Pricing struct {
	AmountMinor int64
	Currency    string
	ProductName string
}

func DefaultPricing() Pricing {
	return Pricing{AmountMinor: 499, Currency: "brl", ProductName: "Análise Contratual"}
}

// Timeouts per external call. Zero disables the limit for that dependency.
type Timeouts struct {
	Extract time.Duration
	LLM     time.Duration
	Payment time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{Extract: 30 * time.Second, LLM: 60 * time.Second, Payment: 15 * time.Second}
}

// Service implements the analysis lifecycle: submit -> checkout -> release -> fetch.
// Service is safe for concurrent use; all shared state lives in Repo.
type Service struct {
	Repo       domain.Repository
	Extractor  domain.Extractor
	Requester  domain.Requester
	Classifier domain.Classifier
	Gateway    domain.CheckoutGateway
	Archive    domain.Archive // optional
	Clock      application.Clock
	Logger     *zap.Logger

	Pricing  Pricing
	Timeouts Timeouts

	// RejectDegraded turns placeholder-text extractions into ErrExtractionFailed.
	// Default is to accept them and mark the record as degraded.
	RejectDegraded bool

	Recommendation string

	// NewToken overrides token generation (tests).
	NewToken func() domain.Token
}

//
// ==== RESULTS ====
//

type SubmitResult struct {
	Token          domain.Token `json:"token"`
	ClauseAnalysis string       `json:"clauseAnalysis"`
	Degraded       bool         `json:"-"`
}

type CheckoutResult struct {
	CheckoutURL string `json:"checkoutUrl"`
	SessionID   string `json:"-"`
}

type ReleaseResult struct {
	Released bool `json:"released"`
}

//
// ==== USE CASES ====
//

// Submit extracts text from the upload, asks the model for an analysis and
// stores a new CREATED record. The uploaded file is removed on every path.
func (s *Service) Submit(ctx context.Context, up domain.Upload) (SubmitResult, error) {
	if up.Path == "" {
		return SubmitResult{}, domain.ErrMissingFile
	}
	defer s.removeUpload(up.Path)

	if !domain.SupportedMediaType(up.MediaType) {
		return SubmitResult{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedMediaType, up.MediaType)
	}

	start := time.Now()
	log := s.log().With(zap.String("media_type", up.MediaType), zap.String("filename", up.Filename))
	log.Info("analysis.submit.start")

	var ext domain.Extraction
	err := s.call(ctx, "extractor", s.Timeouts.Extract, func(ctx context.Context) error {
		var err error
		ext, err = s.Extractor.Extract(ctx, up.Path, up.MediaType)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrDependencyTimeout) {
			return SubmitResult{}, err
		}
		log.Error("analysis.submit.extract_error", zap.Error(err))
		return SubmitResult{}, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}

	status := domain.ExtractionExtracted
	switch ext.Kind {
	case domain.Failed:
		log.Error("analysis.submit.extract_failed", zap.Error(ext.Cause))
		return SubmitResult{}, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, ext.Cause)
	case domain.Degraded:
		if s.RejectDegraded {
			log.Warn("analysis.submit.extract_rejected", zap.Error(ext.Cause))
			return SubmitResult{}, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, ext.Cause)
		}
		log.Warn("analysis.submit.extract_degraded", zap.Error(ext.Cause))
		status = domain.ExtractionDegraded
	}

	var analysis string
	err = s.call(ctx, "llm", s.Timeouts.LLM, func(ctx context.Context) error {
		var err error
		analysis, err = s.Requester.RequestAnalysis(ctx, ext.Text)
		return err
	})
	if err != nil {
		log.Error("analysis.submit.llm_error", zap.Error(err))
		return SubmitResult{}, err
	}

	token := s.token()
	now := s.now()
	rec := &domain.Analysis{
		Token:          token,
		OwnerID:        ownerOrPlaceholder(up.OwnerID, now),
		CreatedAt:      now,
		ClauseAnalysis: analysis,
		Recommendation: s.recommendation(),
		Extraction:     status,
		Paid:           false,
		UpdatedAt:      now,
	}
	rec.ArchiveKey = s.archive(ctx, token, up)

	if err := s.call(ctx, "store", 0, func(ctx context.Context) error {
		return s.Repo.Save(ctx, rec)
	}); err != nil {
		log.Error("analysis.submit.store_error", zap.String("token", string(token)), zap.Error(err))
		return SubmitResult{}, err
	}

	log.Info("analysis.submit.done",
		zap.String("token", string(token)),
		zap.String("extraction", string(status)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return SubmitResult{Token: token, ClauseAnalysis: analysis, Degraded: status == domain.ExtractionDegraded}, nil
}

// BeginCheckout creates a hosted checkout session for an existing token and
// makes it the active session. Each call supersedes the previous session.
func (s *Service) BeginCheckout(ctx context.Context, token domain.Token) (CheckoutResult, error) {
	rec, err := s.get(ctx, token)
	if err != nil {
		return CheckoutResult{}, err
	}
	if rec.Paid {
		return CheckoutResult{}, domain.ErrAlreadyReleased
	}

	var sess domain.CheckoutSession
	err = s.call(ctx, "payment", s.Timeouts.Payment, func(ctx context.Context) error {
		var err error
		sess, err = s.Gateway.CreateSession(ctx, domain.CheckoutRequest{
			Token:       token,
			AmountMinor: s.Pricing.AmountMinor,
			Currency:    s.Pricing.Currency,
			ProductName: s.Pricing.ProductName,
		})
		return err
	})
	if err != nil {
		s.log().Error("analysis.checkout.gateway_error", zap.String("token", string(token)), zap.Error(err))
		return CheckoutResult{}, err
	}

	now := s.now()
	attempt := domain.CheckoutAttempt{SessionID: sess.ID, Provider: s.Gateway.Name(), URL: sess.URL, CreatedAt: now}
	err = s.call(ctx, "store", 0, func(ctx context.Context) error {
		return s.Repo.Update(ctx, token, func(a *domain.Analysis) error {
			a.AttachCheckout(attempt, now)
			return nil
		})
	})
	if err != nil {
		s.log().Error("analysis.checkout.store_error", zap.String("token", string(token)), zap.Error(err))
		return CheckoutResult{}, err
	}

	s.log().Info("analysis.checkout.created",
		zap.String("token", string(token)),
		zap.String("session_id", sess.ID),
		zap.Int("attempt", len(rec.Checkouts)+1),
	)
	return CheckoutResult{CheckoutURL: sess.URL, SessionID: sess.ID}, nil
}

// CheckRelease asks the gateway whether the active session is paid and, if so,
// releases the record. Repeated calls after release keep returning true.
func (s *Service) CheckRelease(ctx context.Context, token domain.Token) (ReleaseResult, error) {
	rec, err := s.get(ctx, token)
	if err != nil {
		return ReleaseResult{}, err
	}
	sessionID := rec.CheckoutSessionID
	if sessionID == "" {
		return ReleaseResult{}, domain.ErrCheckoutNotStarted
	}

	var status domain.PaymentStatus
	err = s.call(ctx, "payment", s.Timeouts.Payment, func(ctx context.Context) error {
		var err error
		status, err = s.Gateway.Status(ctx, sessionID)
		return err
	})
	if err != nil {
		s.log().Error("analysis.release.gateway_error", zap.String("token", string(token)), zap.Error(err))
		return ReleaseResult{}, err
	}
	if status != domain.PaymentPaid {
		// paid never goes back to false
		return ReleaseResult{Released: rec.Paid}, nil
	}

	released := false
	now := s.now()
	err = s.call(ctx, "store", 0, func(ctx context.Context) error {
		return s.Repo.Update(ctx, token, func(a *domain.Analysis) error {
			// a newer checkout replaced this session in the meantime
			if a.CheckoutSessionID != sessionID && !a.Paid {
				return nil
			}
			a.ConfirmPayment(now)
			released = true
			return nil
		})
	})
	if err != nil {
		s.log().Error("analysis.release.store_error", zap.String("token", string(token)), zap.Error(err))
		return ReleaseResult{}, err
	}

	if released {
		s.log().Info("analysis.release.confirmed", zap.String("token", string(token)), zap.String("session_id", sessionID))
	}
	return ReleaseResult{Released: released}, nil
}

// Fetch returns the full record once it is released.
func (s *Service) Fetch(ctx context.Context, token domain.Token) (*domain.Analysis, error) {
	rec, err := s.get(ctx, token)
	if err != nil {
		return nil, err
	}
	if !rec.Paid {
		return nil, domain.ErrPaymentRequired
	}
	return rec, nil
}

// SummarizeClauses is stateless; it only talks to the classifier.
func (s *Service) SummarizeClauses(ctx context.Context, clauses string) (domain.ClauseSummary, error) {
	if strings.TrimSpace(clauses) == "" {
		return domain.ClauseSummary{}, domain.ErrMissingClauses
	}
	var sum domain.ClauseSummary
	err := s.call(ctx, "llm", s.Timeouts.LLM, func(ctx context.Context) error {
		var err error
		sum, err = s.Classifier.Classify(ctx, clauses)
		return err
	})
	if err != nil {
		var pe *domain.ParseError
		if errors.As(err, &pe) {
			s.log().Warn("analysis.summary.parse_error", zap.Error(err), zap.String("raw", pe.Raw))
		} else {
			s.log().Error("analysis.summary.llm_error", zap.Error(err))
		}
		return domain.ClauseSummary{}, err
	}
	return sum, nil
}

// Ping reports whether the record store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.Repo.Ping(ctx)
}

//
// ==== helpers ====
//

func (s *Service) get(ctx context.Context, token domain.Token) (*domain.Analysis, error) {
	var rec *domain.Analysis
	err := s.call(ctx, "store", 0, func(ctx context.Context) error {
		var err error
		rec, err = s.Repo.Get(ctx, token)
		return err
	})
	return rec, err
}

// call runs fn under an optional deadline and classifies its error.
func (s *Service) call(ctx context.Context, dependency string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", dependency, domain.ErrDependencyTimeout)
	}
	if errors.Is(err, domain.ErrTokenNotFound) {
		return err
	}
	var pe *domain.ParseError
	if errors.As(err, &pe) {
		return err
	}
	var de *domain.DependencyError
	if errors.As(err, &de) {
		return err
	}
	return &domain.DependencyError{Dependency: dependency, Err: err}
}

func (s *Service) archive(ctx context.Context, token domain.Token, up domain.Upload) string {
	if s.Archive == nil {
		return ""
	}
	name := filepath.Base(up.Filename)
	if name == "." || name == "/" || name == "" {
		name = "document" + extensionFor(up.MediaType)
	}
	key := fmt.Sprintf("analyses/%s/%s", token, name)
	if _, err := s.Archive.Put(ctx, up.Path, key, up.MediaType); err != nil {
		s.log().Warn("analysis.submit.archive_error", zap.String("token", string(token)), zap.Error(err))
		return ""
	}
	return key
}

func (s *Service) removeUpload(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log().Warn("analysis.submit.cleanup_error", zap.String("path", path), zap.Error(err))
	}
}

func (s *Service) token() domain.Token {
	if s.NewToken != nil {
		return s.NewToken()
	}
	return domain.Token(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return application.SystemClock{}.Now()
	}
	return s.Clock.Now()
}

func (s *Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) recommendation() string {
	if s.Recommendation != "" {
		return s.Recommendation
	}
	return DefaultRecommendation
}

func ownerOrPlaceholder(owner string, now time.Time) string {
	if o := strings.TrimSpace(owner); o != "" {
		return o
	}
	return fmt.Sprintf("anonymous-%d", now.UnixMilli())
}

func extensionFor(mediaType string) string {
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
